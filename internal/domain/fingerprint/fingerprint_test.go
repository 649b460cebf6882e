package fingerprint

import "testing"

// TestCompute_Deterministic проверяет, что одинаковые байты дают
// одинаковый отпечаток, а отличающиеся — разный.
func TestCompute_Deterministic(t *testing.T) {
	data := []byte("конспект по линейной алгебре")

	fp1 := Compute(data, "algebra.pdf")
	fp2 := Compute(data, "algebra.pdf")

	if fp1 != fp2 {
		t.Errorf("одинаковые байты дали разные отпечатки: %+v != %+v", fp1, fp2)
	}

	// Один изменённый байт — другой хэш
	mutated := make([]byte, len(data))
	copy(mutated, data)
	mutated[0] ^= 0x01

	fp3 := Compute(mutated, "algebra.pdf")
	if fp3.Hash == fp1.Hash {
		t.Error("отличающиеся байты дали одинаковый хэш")
	}
}

// TestCompute_HashFormat проверяет формат хэша: 64 символа lowercase hex.
func TestCompute_HashFormat(t *testing.T) {
	fp := Compute([]byte("data"), "file.pdf")

	if len(fp.Hash) != 64 {
		t.Errorf("длина хэша = %d, ожидалось 64", len(fp.Hash))
	}
	for _, c := range fp.Hash {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			t.Errorf("недопустимый символ в хэше: %q", c)
			break
		}
	}
}

// TestCompute_EmptyInput проверяет, что пустой вход даёт
// детерминированный валидный хэш (SHA-256 пустой строки).
func TestCompute_EmptyInput(t *testing.T) {
	const emptySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	fp := Compute(nil, "")
	if fp.Hash != emptySHA256 {
		t.Errorf("хэш пустого входа = %q, ожидалось %q", fp.Hash, emptySHA256)
	}
	if fp.Extension != DefaultExtension {
		t.Errorf("расширение = %q, ожидалось %q", fp.Extension, DefaultExtension)
	}
}

// TestNormalizeExtension проверяет нормализацию расширений.
func TestNormalizeExtension(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"notes.pdf", "pdf"},
		{"notes.PDF", "pdf"},
		{"archive.tar.gz", "gz"},
		{"noext", DefaultExtension},
		{"", DefaultExtension},
		{"trailing.", DefaultExtension},
		{"many.dots.in.name.DOCX", "docx"},
	}

	for _, tt := range tests {
		got := NormalizeExtension(tt.filename)
		if got != tt.want {
			t.Errorf("NormalizeExtension(%q) = %q, ожидалось %q", tt.filename, got, tt.want)
		}
	}
}
