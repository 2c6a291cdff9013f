package logger

import "testing"

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"production", "prod", "development", "dev", "", " Production "} {
		log, err := New(mode)
		if err != nil {
			t.Errorf("New(%q): %v", mode, err)
			continue
		}
		log.Sync()
	}

	if _, err := New("verbose"); err == nil {
		t.Error("unknown log mode accepted")
	}
}

func TestWithDerivesChild(t *testing.T) {
	log, err := New("development")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer log.Sync()

	child := log.With("service", "QuotaService")
	if child == log {
		t.Fatal("With returned the parent logger")
	}
	child.Debug("derived logger works")
}
