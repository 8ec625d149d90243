package modregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    ModuleVersion
		wantErr bool
	}{
		{name: "simple", text: "1.2.3", want: ModuleVersion{1, 2, 3}},
		{name: "zeros", text: "0.0.0", want: ModuleVersion{0, 0, 0}},
		{name: "large components", text: "10.20.30", want: ModuleVersion{10, 20, 30}},
		{name: "missing patch", text: "1.2", wantErr: true},
		{name: "extra component", text: "1.2.3.4", wantErr: true},
		{name: "non-numeric", text: "1.x.3", wantErr: true},
		{name: "negative component", text: "1.-2.3", wantErr: true},
		{name: "empty", text: "", wantErr: true},
		{name: "spaces", text: "1. 2.3", wantErr: true},
		{name: "v prefix", text: "v1.2.3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVersion(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrMalformedVersion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "2.0.0", -1},
		{"2.0.0", "1.9.9", 1},
		{"1.2.0", "1.10.0", -1},
		{"1.2.3", "1.2.4", -1},
		{"0.0.1", "0.0.0", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+" vs "+tt.b, func(t *testing.T) {
			a := MustParseVersion(tt.a)
			b := MustParseVersion(tt.b)
			assert.Equal(t, tt.want, a.Compare(b))
			assert.Equal(t, -tt.want, b.Compare(a))
		})
	}
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "1.2.3", ModuleVersion{1, 2, 3}.String())
}

func drawVersion(t *rapid.T, label string) ModuleVersion {
	return ModuleVersion{
		Major: rapid.IntRange(0, 20).Draw(t, label+"Major"),
		Minor: rapid.IntRange(0, 20).Draw(t, label+"Minor"),
		Patch: rapid.IntRange(0, 20).Draw(t, label+"Patch"),
	}
}

func TestVersionCompareIsTotalOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := drawVersion(t, "a")
		b := drawVersion(t, "b")
		c := drawVersion(t, "c")

		if a.Compare(a) != 0 {
			t.Fatalf("compare(a,a) = %d, want 0", a.Compare(a))
		}
		if a.Compare(b) != -b.Compare(a) {
			t.Fatalf("compare is not antisymmetric for %s, %s", a, b)
		}
		if a.Compare(b) <= 0 && b.Compare(c) <= 0 && a.Compare(c) > 0 {
			t.Fatalf("compare is not transitive for %s, %s, %s", a, b, c)
		}
	})
}

func TestVersionParseRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := drawVersion(t, "v")
		parsed, err := ParseVersion(v.String())
		if err != nil {
			t.Fatalf("round trip parse failed: %v", err)
		}
		if !parsed.Equal(v) {
			t.Fatalf("round trip changed %s to %s", v, parsed)
		}
	})
}
