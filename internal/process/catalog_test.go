package process

import (
	"strings"
	"testing"
)

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	want := map[string]struct {
		script  string
		inputs  []string
		outputs []string
	}{
		"combine-eurostat-data":         {"combine_eurostat_data.R", []string{"country_code", "year"}, []string{"nuts3_pop_data"}},
		"clean-catchment-geometry":      {"clean_catchment_geometry.R", []string{"inputFile1_gpkg"}, []string{"catchment_cleaned"}},
		"filter-clip-clean-extent":      {"filter_clip_clean_extent.R", []string{"inputFile1_gpkg", "inputFile2_gpkg", "inputFile3_gpkg"}, []string{"nuts3_filtered", "lau_processed", "analysis_extent"}},
		"weighting-functions":           {"weighting_functions.R", []string{"inputFile1_tif", "inputFile2_gpkg", "inputFile3_dbf"}, []string{"weight_table_csv", "weight_table_rds"}},
		"process-interpolate-lau":       {"process_interpolate_lau.R", []string{"inputFile1_gpkg", "inputFile2_gpkg"}, []string{"lau_population_errors"}},
		"process-interpolate-subbasins": {"process_interpolate_subbasins.R", []string{"inputFile1_gpkg", "inputFile2_gpkg"}, []string{"subbasin_population_density"}},
		"process-create-visualizations": {"process_create_visualizations.R", []string{"inputFile1_rds", "inputFile2_gpkg", "inputFile3_gpkg"}, []string{"visual_weight_table", "visual_lau_error_map", "visual_subbasin_density_map"}},
	}

	if got := len(c.List()); got != len(want) {
		t.Fatalf("catalog has %d processes, want %d", got, len(want))
	}
	for id, w := range want {
		def, ok := c.Get(id)
		if !ok {
			t.Errorf("process %q missing", id)
			continue
		}
		if def.Script != w.script {
			t.Errorf("%s: script = %q, want %q", id, def.Script, w.script)
		}
		var inputs, outputs []string
		for _, in := range def.Inputs {
			inputs = append(inputs, in.ID)
		}
		for _, out := range def.Outputs {
			outputs = append(outputs, out.ID)
			if !strings.Contains(out.Filename, jobPlaceholder) {
				t.Errorf("%s/%s: filename %q lacks %s", id, out.ID, out.Filename, jobPlaceholder)
			}
			if out.Title == "" || out.Description == "" {
				t.Errorf("%s/%s: missing title or description", id, out.ID)
			}
		}
		if strings.Join(inputs, ",") != strings.Join(w.inputs, ",") {
			t.Errorf("%s: inputs = %v, want %v", id, inputs, w.inputs)
		}
		if strings.Join(outputs, ",") != strings.Join(w.outputs, ",") {
			t.Errorf("%s: outputs = %v, want %v", id, outputs, w.outputs)
		}
	}
}

func TestCatalog_ListSorted(t *testing.T) {
	c, err := LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	list := c.List()
	for i := 1; i < len(list); i++ {
		if list[i-1].ID >= list[i].ID {
			t.Errorf("List not sorted: %q before %q", list[i-1].ID, list[i].ID)
		}
	}
	if _, ok := c.Get("no-such-process"); ok {
		t.Error("Get returned ok for unknown id")
	}
}

func TestOutputFilename(t *testing.T) {
	def := &Definition{ID: "p"}
	out := OutputDef{ID: "o", Filename: "weight_table-{job}.csv"}
	if got := def.OutputFilename(out, "abc"); got != "weight_table-abc.csv" {
		t.Errorf("OutputFilename = %q", got)
	}
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "processes: ["},
		{"missing id", "processes:\n  - script: a.R\n    outputs: [{id: o, filename: o.txt}]\n"},
		{"missing script", "processes:\n  - id: p\n    outputs: [{id: o, filename: o.txt}]\n"},
		{"no outputs", "processes:\n  - id: p\n    script: a.R\n"},
		{"duplicate process", "processes:\n  - {id: p, script: a.R, outputs: [{id: o, filename: o.txt}]}\n  - {id: p, script: b.R, outputs: [{id: o, filename: o.txt}]}\n"},
		{"duplicate input", "processes:\n  - {id: p, script: a.R, inputs: [{id: i}, {id: i}], outputs: [{id: o, filename: o.txt}]}\n"},
		{"path in filename", "processes:\n  - {id: p, script: a.R, outputs: [{id: o, filename: ../o.txt}]}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCatalog([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
