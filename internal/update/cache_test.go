package update

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// **Feature: artifact-update, Property 2: Descriptor cache persistence**
func TestDescriptorCachePersistence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	fixedNow := time.Date(2026, 1, 22, 12, 0, 0, 0, time.UTC)

	properties.Property("entries survive a reload", prop.ForAll(
		func(key, etag, name, id string) bool {
			dir := t.TempDir()
			cache, err := NewDescriptorCache(dir, WithNowFunc(func() time.Time { return fixedNow }))
			if err != nil {
				return false
			}
			art := RemoteArtifact{Name: name, ID: id, DownloadURL: "https://dl/" + name}
			if err := cache.Set(key, etag, art); err != nil {
				return false
			}

			reloaded, err := NewDescriptorCache(dir)
			if err != nil {
				return false
			}
			entry, ok := reloaded.Get(key)
			return ok && entry.ETag == etag && entry.Artifact == art && entry.Timestamp.Equal(fixedNow)
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.Identifier(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}

func TestDescriptorCacheCorruptedFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "descriptor-cache.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	cache, err := NewDescriptorCache(dir)
	if err != nil {
		t.Fatalf("corruption should not be an error: %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", cache.Len())
	}

	if err := cache.Set("k", `"e"`, RemoteArtifact{Name: "a.jar"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := os.Stat(cache.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should be renamed away")
	}
}

func TestDescriptorCacheIgnoresEmptyETag(t *testing.T) {
	cache, err := NewDescriptorCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Set("k", "", RemoteArtifact{Name: "a.jar"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.Get("k"); ok {
		t.Error("an entry without ETag cannot be used for conditional requests")
	}
	if err := cache.Delete("k"); err != nil || cache.Len() != 0 {
		t.Errorf("Delete: %v, len %d", err, cache.Len())
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".treex-version")

	got, err := ReadMarker(path)
	if err != nil || got != "" {
		t.Fatalf("missing marker should read as empty, got %q, %v", got, err)
	}
	if err := WriteMarker(path, "abc123"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("  abc123 \r\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if got, _ := ReadMarker(path); got != "abc123" {
		t.Errorf("ReadMarker = %q", got)
	}
}
