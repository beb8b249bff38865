package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opextools/portal_agent/internal/portal"
)

func TestStreamLog(t *testing.T) {
	t.Run("writes_header_on_create", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dados", "stream.txt")

		s, err := NewStreamLog(path)
		if err != nil {
			t.Fatalf("NewStreamLog() error = %v", err)
		}
		if s.Path() != path {
			t.Fatalf("Path() = %q; want %q", s.Path(), path)
		}

		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if string(got) != "cpf;status;mensagem\n" {
			t.Fatalf("stream content = %q; want header only", got)
		}
	})

	t.Run("truncates_previous_run", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "stream.txt")
		if err := os.WriteFile(path, []byte("stale content\n"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		if _, err := NewStreamLog(path); err != nil {
			t.Fatalf("NewStreamLog() error = %v", err)
		}

		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if string(got) != "cpf;status;mensagem\n" {
			t.Fatalf("stream content = %q; want header only", got)
		}
	})

	t.Run("appends_result_lines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "stream.txt")
		s, err := NewStreamLog(path)
		if err != nil {
			t.Fatalf("NewStreamLog() error = %v", err)
		}

		results := []portal.Result{
			{CPF: "12345678901", Status: "ok", Mensagem: "extração concluída"},
			{CPF: "22233344455", Status: "erro", Mensagem: "erro: TIMEOUT"},
		}
		for _, res := range results {
			if err := s.Append(res); err != nil {
				t.Fatalf("Append(%s) error = %v", res.CPF, err)
			}
		}

		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		want := "cpf;status;mensagem\n" +
			"12345678901;ok;extração concluída\n" +
			"22233344455;erro;erro: TIMEOUT\n"
		if string(got) != want {
			t.Fatalf("stream content = %q; want %q", got, want)
		}
	})

	t.Run("sanitizes_separator_and_newlines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "stream.txt")
		s, err := NewStreamLog(path)
		if err != nil {
			t.Fatalf("NewStreamLog() error = %v", err)
		}

		res := portal.Result{CPF: "111", Status: "erro", Mensagem: "erro: a;b\nc"}
		if err := s.Append(res); err != nil {
			t.Fatalf("Append() error = %v", err)
		}

		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		want := "cpf;status;mensagem\n111;erro;erro: a,b c\n"
		if string(got) != want {
			t.Fatalf("stream content = %q; want %q", got, want)
		}
	})

	t.Run("append_fails_when_file_removed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "stream.txt")
		s, err := NewStreamLog(path)
		if err != nil {
			t.Fatalf("NewStreamLog() error = %v", err)
		}
		if err := os.Remove(path); err != nil {
			t.Fatalf("Remove: %v", err)
		}

		if err := s.Append(portal.Result{CPF: "111", Status: "ok"}); err == nil {
			t.Fatal("Append() error = nil; want open error")
		}
	})
}
