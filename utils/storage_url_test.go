package utils

import "testing"

func TestExtractObjectKeyFromURL(t *testing.T) {
	t.Setenv("STORAGE_ACCESS_BASE_URL", "")
	cases := []struct {
		in       string
		expected string
	}{
		{"uploads/product/abc/image_1_0.png", "uploads/product/abc/image_1_0.png"},
		{"/files/uploads/product/abc/image_1_0.png", "uploads/product/abc/image_1_0.png"},
		{"https://api.local/files/uploads/product/abc/a.png", "uploads/product/abc/a.png"},
		{"gs://bucket/uploads/product/abc/a.png", "uploads/product/abc/a.png"},
		{"https://storage.googleapis.com/bucket/uploads/x/y.png", "uploads/x/y.png"},
		{"uploads/../etc/passwd", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ExtractObjectKeyFromURL(tc.in); got != tc.expected {
			t.Fatalf("ExtractObjectKeyFromURL(%q) = %q, want %q", tc.in, got, tc.expected)
		}
	}
}

func TestBuildObjectAccessURLLocal(t *testing.T) {
	t.Setenv("STORAGE_ACCESS_BASE_URL", "")
	t.Setenv("STORAGE_PROVIDER", "local")
	key := "uploads/product/abc/a.png"
	got := BuildObjectAccessURL(key)
	if got != "/files/"+key {
		t.Fatalf("BuildObjectAccessURL = %q", got)
	}
	if ExtractObjectKeyFromURL(got) != key {
		t.Fatalf("access URL should map back to its key")
	}
}
