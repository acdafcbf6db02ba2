package script

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "filter.lua")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func newTestFilter(t *testing.T, content string) *Filter {
	t.Helper()
	f, err := NewFilter(writeScript(t, content), nil)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestFilter_PassThrough(t *testing.T) {
	f := newTestFilter(t, `
function filter(word, suggestions)
  return suggestions
end
`)

	got := f.Apply("recieve", []string{"receive", "relieve"})
	if !reflect.DeepEqual(got, []string{"receive", "relieve"}) {
		t.Errorf("Apply = %v", got)
	}
}

func TestFilter_Prunes(t *testing.T) {
	f := newTestFilter(t, `
function filter(word, suggestions)
  local out = {}
  for _, s in ipairs(suggestions) do
    if s ~= "relieve" then
      table.insert(out, s)
    end
  end
  return out
end
`)

	got := f.Apply("recieve", []string{"receive", "relieve"})
	if !reflect.DeepEqual(got, []string{"receive"}) {
		t.Errorf("Apply = %v, want [receive]", got)
	}
}

func TestFilter_SeesWord(t *testing.T) {
	f := newTestFilter(t, `
function filter(word, suggestions)
  return { word .. "-seen" }
end
`)

	got := f.Apply("teh", []string{"the"})
	if !reflect.DeepEqual(got, []string{"teh-seen"}) {
		t.Errorf("Apply = %v", got)
	}
}

func TestFilter_RuntimeErrorReturnsInput(t *testing.T) {
	f := newTestFilter(t, `
function filter(word, suggestions)
  error("boom")
end
`)

	input := []string{"receive"}
	got := f.Apply("recieve", input)
	if !reflect.DeepEqual(got, input) {
		t.Errorf("Apply = %v, want input unchanged", got)
	}
}

func TestFilter_BadReturnTypeReturnsInput(t *testing.T) {
	f := newTestFilter(t, `
function filter(word, suggestions)
  return "receive"
end
`)

	input := []string{"receive"}
	got := f.Apply("recieve", input)
	if !reflect.DeepEqual(got, input) {
		t.Errorf("Apply = %v, want input unchanged", got)
	}
}

func TestNewFilter_MissingFunction(t *testing.T) {
	path := writeScript(t, `x = 1`)
	if _, err := NewFilter(path, nil); err == nil {
		t.Error("expected error when filter function is missing")
	}
}

func TestNewFilter_SyntaxError(t *testing.T) {
	path := writeScript(t, `function filter(`)
	if _, err := NewFilter(path, nil); err == nil {
		t.Error("expected error for unparsable script")
	}
}

func TestFilter_ApplyAfterClose(t *testing.T) {
	f := newTestFilter(t, `
function filter(word, suggestions)
  return suggestions
end
`)
	_ = f.Close()

	input := []string{"receive"}
	if got := f.Apply("recieve", input); !reflect.DeepEqual(got, input) {
		t.Errorf("Apply after Close = %v, want input unchanged", got)
	}
}
