package model

import (
	"sort"
	"strconv"
	"strings"
)

// Label keys understood at the container level. Everything else under the
// "backup." prefix belongs either to the schedule namespace or to a target
// namespace.
const (
	LabelPrefix         = "backup."
	LabelEnabled        = "backup.enabled"
	LabelStop           = "backup.stop"
	labelSchedulePrefix = "backup.schedule."

	defaultRetention = 7
)

// Second path segments that can never start a target namespace.
var reservedTopLevel = map[string]struct{}{
	"enabled":  {},
	"stop":     {},
	"schedule": {},
}

// ParseBool parses a dedicated boolean label value. Absent, empty or
// unrecognized input is false; true, 1, yes and on (case-insensitive) are
// true.
func ParseBool(value string) bool {
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

// ParseValue coerces a raw label value into a typed property value:
// base-10 integer first, then boolean token, otherwise the string itself.
func ParseValue(value string) any {
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	switch strings.ToLower(value) {
	case "true", "false", "yes", "no", "on", "off":
		return ParseBool(value)
	}
	return value
}

// ScheduleFromLabels builds a ScheduleConfig for the named schedule from
// its cron/retention sibling labels. A schedule without a cron label does
// not exist; a missing or malformed retention falls back to 7.
func ScheduleFromLabels(name string, labels map[string]string) (ScheduleConfig, bool) {
	cron, ok := labels[labelSchedulePrefix+name+".cron"]
	if !ok {
		return ScheduleConfig{}, false
	}

	retention := defaultRetention
	if s, ok := labels[labelSchedulePrefix+name+".retention"]; ok && s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			retention = n
		}
	}

	return ScheduleConfig{Name: name, Cron: cron, Retention: retention}, true
}

// TargetFromLabels builds a TargetConfig for the given (type, instance)
// pair from its label namespace. The reserved schedule/compress suffixes
// configure the target itself; every other key under the namespace becomes
// a coerced property.
func TargetFromLabels(typ TargetType, instance string, labels map[string]string, defaultSchedule string, defaultCompress bool) (TargetConfig, error) {
	prefix := LabelPrefix + string(typ) + "." + instance + "."

	properties := make(map[string]any)
	for key, value := range labels {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		prop := key[len(prefix):]
		if prop == "schedule" || prop == "compress" {
			continue
		}
		properties[prop] = ParseValue(value)
	}

	// A present schedule label always wins, even when empty; the empty
	// reference then fails schedule resolution downstream.
	schedule := defaultSchedule
	if s, ok := labels[prefix+"schedule"]; ok {
		schedule = s
	}

	compress := defaultCompress
	if s, ok := labels[prefix+"compress"]; ok && s != "" {
		compress = ParseBool(s)
	}

	return NewTargetConfig(typ, instance, schedule, compress, properties)
}

// parseSchedules resolves the schedule set: schedules discovered in labels
// first, then defaults for any name not explicitly configured.
func parseSchedules(labels map[string]string, defaults map[string]ScheduleConfig) map[string]ScheduleConfig {
	schedules := make(map[string]ScheduleConfig)

	names := make(map[string]struct{})
	for key := range labels {
		if !strings.HasPrefix(key, labelSchedulePrefix) {
			continue
		}
		parts := strings.Split(key, ".")
		if len(parts) >= 4 {
			names[parts[2]] = struct{}{}
		}
	}

	for name := range names {
		if sched, ok := ScheduleFromLabels(name, labels); ok {
			schedules[name] = sched
		}
	}

	for name, sched := range defaults {
		if _, ok := schedules[name]; !ok {
			schedules[name] = sched
		}
	}

	return schedules
}

// parseTargets discovers targets from label keys of the form
// backup.<type>.<instance>.<...>. Label keys are scanned in sorted order so
// the resulting target order is deterministic; each (type, instance) pair
// yields exactly one target.
func parseTargets(labels map[string]string, defaultSchedule string, defaultCompress bool) []TargetConfig {
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var targets []TargetConfig
	seen := make(map[[2]string]struct{})

	for _, key := range keys {
		if !strings.HasPrefix(key, LabelPrefix) {
			continue
		}
		parts := strings.Split(key, ".")
		if len(parts) < 4 {
			continue
		}

		typ, instance := parts[1], parts[2]
		if _, reserved := reservedTopLevel[typ]; reserved {
			continue
		}
		if !ValidTargetType(typ) {
			continue
		}
		if _, dup := seen[[2]string{typ, instance}]; dup {
			continue
		}
		seen[[2]string{typ, instance}] = struct{}{}

		target, err := TargetFromLabels(TargetType(typ), instance, labels, defaultSchedule, defaultCompress)
		if err != nil {
			continue
		}
		targets = append(targets, target)
	}

	return targets
}

// ConfigFromLabels compiles a container's labels into its backup
// configuration. Malformed individual labels are dropped, never fatal; a
// nil defaultSchedules falls back to the built-in schedule set.
func ConfigFromLabels(containerID, containerName string, labels map[string]string, defaultSchedules map[string]ScheduleConfig, defaultTargetSchedule string, defaultTargetCompress bool) ContainerBackupConfig {
	if defaultSchedules == nil {
		defaultSchedules = BuiltinSchedules()
	}

	return ContainerBackupConfig{
		ContainerID:   containerID,
		ContainerName: strings.TrimPrefix(containerName, "/"),
		Enabled:       ParseBool(labels[LabelEnabled]),
		Stop:          ParseBool(labels[LabelStop]),
		Schedules:     parseSchedules(labels, defaultSchedules),
		Targets:       parseTargets(labels, defaultTargetSchedule, defaultTargetCompress),
	}
}

// BuiltinSchedules returns the fallback schedule set used when neither
// labels nor controller configuration supply any.
func BuiltinSchedules() map[string]ScheduleConfig {
	return map[string]ScheduleConfig{
		"daily":  {Name: "daily", Cron: "0 3 * * *", Retention: 7},
		"hourly": {Name: "hourly", Cron: "0 * * * *", Retention: 24},
		"weekly": {Name: "weekly", Cron: "0 4 * * 0", Retention: 4},
	}
}
