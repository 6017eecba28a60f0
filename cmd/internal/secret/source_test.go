package secret

import (
	"errors"
	"io"
	"testing"
)

func newTestSource(env map[string]string, terminal bool, typed string) (*Source, *int) {
	reads := 0
	s := NewSource("RAFFLE_TEST_SECRET", "signing secret")
	s.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	s.isTerminal = func() bool { return terminal }
	s.readSecret = func() ([]byte, error) {
		reads++
		return []byte(typed), nil
	}
	s.prompt = io.Discard
	return s, &reads
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s, reads := newTestSource(map[string]string{"RAFFLE_TEST_SECRET": "from-env"}, true, "typed")
	got, err := s.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "from-env" || *reads != 0 {
		t.Fatalf("expected env value without prompting, got %q after %d reads", got, *reads)
	}
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	s, _ := newTestSource(map[string]string{"RAFFLE_TEST_SECRET": "  "}, true, "typed")
	if _, err := s.Get(); err == nil {
		t.Fatalf("expected error for blank env value")
	}
}

func TestSourcePromptsOnceAndCaches(t *testing.T) {
	s, reads := newTestSource(nil, true, "typed")
	for i := 0; i < 2; i++ {
		got, err := s.Get()
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got != "typed" {
			t.Fatalf("unexpected secret %q", got)
		}
	}
	if *reads != 1 {
		t.Fatalf("expected a single prompt, got %d", *reads)
	}
}

func TestSourceWithoutTerminal(t *testing.T) {
	s, _ := newTestSource(nil, false, "")
	if _, err := s.Get(); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
