package dumper

import (
	"testing"

	"baqup/internal/model"
)

func TestGetDumperAllTypes(t *testing.T) {
	tests := []struct {
		typ   model.TargetType
		props map[string]any
	}{
		{model.TargetPostgres, nil},
		{model.TargetMariaDB, nil},
		{model.TargetMySQL, nil},
		{model.TargetMongo, nil},
		{model.TargetRedis, nil},
		{model.TargetSQLite, map[string]any{"path": "/data/app.db"}},
		{model.TargetFS, map[string]any{"path": "/data"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			target, err := model.NewTargetConfig(tt.typ, "main", "daily", true, tt.props)
			if err != nil {
				t.Fatalf("NewTargetConfig() error = %v", err)
			}
			if _, err := GetDumper(target); err != nil {
				t.Errorf("GetDumper(%s) error = %v", tt.typ, err)
			}
		})
	}
}

func TestGetDumperUnknownType(t *testing.T) {
	if _, err := GetDumper(model.TargetConfig{Type: "cassandra"}); err == nil {
		t.Error("expected error for unregistered target type")
	}
}

func TestPathRequiredDumpers(t *testing.T) {
	for _, typ := range []model.TargetType{model.TargetSQLite, model.TargetFS} {
		target, err := model.NewTargetConfig(typ, "nopath", "daily", true, nil)
		if err != nil {
			t.Fatalf("NewTargetConfig() error = %v", err)
		}
		if _, err := GetDumper(target); err == nil {
			t.Errorf("%s dumper without path property should fail", typ)
		}
	}
}
