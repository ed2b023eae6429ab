package passphrase

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func newTestSource(env map[string]string, prompted string, promptErr error) (*Source, *int) {
	calls := 0
	s := NewSource("REMITLEND_TEST_PASS", "admin keystore")
	s.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	s.prompt = func(string) (string, error) {
		calls++
		return prompted, promptErr
	}
	return s, &calls
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s, calls := newTestSource(map[string]string{"REMITLEND_TEST_PASS": "from-env"}, "typed", nil)
	got, err := s.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "from-env" || *calls != 0 {
		t.Fatalf("expected env value without prompt, got %q after %d prompts", got, *calls)
	}
}

func TestSourcePromptsOnceAndCaches(t *testing.T) {
	s, calls := newTestSource(nil, "typed", nil)
	for i := 0; i < 3; i++ {
		got, err := s.Get()
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got != "typed" {
			t.Fatalf("unexpected passphrase %q", got)
		}
	}
	if *calls != 1 {
		t.Fatalf("expected one prompt, got %d", *calls)
	}
}

func TestSourceRejectsEmpty(t *testing.T) {
	s, _ := newTestSource(map[string]string{"REMITLEND_TEST_PASS": "  "}, "", nil)
	if _, err := s.Get(); err == nil {
		t.Fatalf("expected empty env passphrase to be rejected")
	}

	s, _ = newTestSource(nil, "", nil)
	if _, err := s.Get(); err == nil || !strings.Contains(err.Error(), "cannot be empty") {
		t.Fatalf("expected empty prompt to be rejected, got %v", err)
	}

	s, _ = newTestSource(nil, "", nil)
	if got, err := s.AllowEmpty().Get(); err != nil || got != "" {
		t.Fatalf("expected empty passphrase to be allowed, got %q, %v", got, err)
	}
}

func TestSourceNoTerminal(t *testing.T) {
	s, _ := newTestSource(nil, "", errNoTerminal)
	_, err := s.Get()
	if !errors.Is(err, errNoTerminal) {
		t.Fatalf("expected no terminal error, got %v", err)
	}
	if !strings.Contains(err.Error(), "REMITLEND_TEST_PASS") {
		t.Fatalf("error should name the environment variable: %v", err)
	}
}

func TestReadPasswordWritesPrompt(t *testing.T) {
	var out bytes.Buffer
	got, err := readPassword(&out, "admin keystore", func() ([]byte, error) { return []byte("secret"), nil })
	if err != nil || got != "secret" {
		t.Fatalf("unexpected result %q, %v", got, err)
	}
	if !strings.HasPrefix(out.String(), "Enter admin keystore passphrase: ") {
		t.Fatalf("unexpected prompt %q", out.String())
	}
}
