package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestExpandBatchFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.json", "nested/b.yaml", "nested/deep/c.yml", "notes.txt"} {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := expandBatchFiles([]string{dir}, defaultBatchPattern)
	if err != nil {
		t.Fatalf("expandBatchFiles failed: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.json"),
		filepath.Join(dir, "nested", "b.yaml"),
		filepath.Join(dir, "nested", "deep", "c.yml"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expandBatchFiles() = %v, want %v", got, want)
	}

	t.Run("Plain File Kept", func(t *testing.T) {
		file := filepath.Join(dir, "notes.txt")
		got, err := expandBatchFiles([]string{file}, defaultBatchPattern)
		if err != nil || len(got) != 1 || got[0] != file {
			t.Errorf("expandBatchFiles(file) = %v, %v", got, err)
		}
	})

	t.Run("Invalid Pattern", func(t *testing.T) {
		if _, err := expandBatchFiles([]string{dir}, "[a-"); err == nil {
			t.Error("Expected an error for an invalid pattern")
		}
	})
}

func TestReadBatch(t *testing.T) {
	dir := t.TempDir()
	yamlFile := filepath.Join(dir, "batch.yaml")
	content := `contextId: deposits
observations:
  - fieldPath: /Ceremony/Account/Balance
    count: 2
    hasNull: true
    metadata:
      productCode: DDA
`
	if err := os.WriteFile(yamlFile, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	batch, err := readBatch(yamlFile)
	if err != nil {
		t.Fatalf("readBatch failed: %v", err)
	}
	if batch.ContextID != "deposits" || len(batch.Observations) != 1 {
		t.Fatalf("unexpected batch: %+v", batch)
	}
	o := batch.Observations[0]
	if o.OccurrenceCount != 2 || !o.HasNull || o.Metadata["productCode"] != "DDA" {
		t.Errorf("unexpected observation: %+v", o)
	}

	jsonFile := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(jsonFile, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := readBatch(jsonFile); err == nil {
		t.Error("Expected a decoding error")
	}
}

func TestParsePairs(t *testing.T) {
	got, err := parsePairs([]string{"productCode=DDA, SAV", "action=Fulfillment", "channel="})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string][]string{"productCode": {"DDA", "SAV"}, "action": {"Fulfillment"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parsePairs() = %v, want %v", got, want)
	}
	if _, err := parsePairs([]string{"novalue"}); err == nil {
		t.Error("Expected an error without '='")
	}
}
