package address

import (
	"errors"
	"testing"
)

func TestAddress_Segments(t *testing.T) {
	tests := []struct {
		addr     Address
		expected []string
	}{
		{Address("/synth/1/freq"), []string{"synth", "1", "freq"}},
		{Address("/transport"), []string{"transport"}},
		{Address("/foo/"), []string{"foo", ""}},
		{Address("/"), []string{""}},
		{Address(""), nil},
		{Address("no/slash"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.addr.String(), func(t *testing.T) {
			got := tt.addr.Segments()
			if len(got) != len(tt.expected) {
				t.Fatalf("Segments() = %q, want %q", got, tt.expected)
			}
			for i, seg := range got {
				if seg != tt.expected[i] {
					t.Errorf("Segments()[%d] = %q, want %q", i, seg, tt.expected[i])
				}
			}
		})
	}
}

func TestAddress_SegmentCount(t *testing.T) {
	tests := []struct {
		addr     Address
		expected int
	}{
		{Address("/synth/1/freq"), 3},
		{Address("/foo/"), 2},
		{Address("/"), 1},
		{Address(""), 0},
	}

	for _, tt := range tests {
		t.Run(tt.addr.String(), func(t *testing.T) {
			if got := tt.addr.SegmentCount(); got != tt.expected {
				t.Errorf("SegmentCount() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestAddress_ParentChildBase(t *testing.T) {
	a := Address("/synth/1/freq")

	if got := a.Parent(); got != "/synth/1" {
		t.Errorf("Parent() = %q, want /synth/1", got)
	}
	if got := Address("/synth").Parent(); got != "" {
		t.Errorf("Parent() of single segment = %q, want empty", got)
	}
	if got := Address("/synth").Child("2"); got != "/synth/2" {
		t.Errorf("Child() = %q, want /synth/2", got)
	}
	if got := a.Base(); got != "freq" {
		t.Errorf("Base() = %q, want freq", got)
	}
	if got := Join("mixer", "master", "gain"); got != "/mixer/master/gain" {
		t.Errorf("Join() = %q, want /mixer/master/gain", got)
	}
}

func TestAddress_HasPrefix(t *testing.T) {
	tests := []struct {
		addr     Address
		prefix   Address
		expected bool
	}{
		{"/synth/1/freq", "/synth", true},
		{"/synth/1/freq", "/synth/1", true},
		{"/synth/1/freq", "/synth/1/freq", true},
		{"/synthesizer/1", "/synth", false},
		{"/synth", "/synth/1", false},
		{"/synth", "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.addr)+"~"+string(tt.prefix), func(t *testing.T) {
			if got := tt.addr.HasPrefix(tt.prefix); got != tt.expected {
				t.Errorf("HasPrefix(%q) = %v, want %v", tt.prefix, got, tt.expected)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"simple", "/foo/bar", true},
		{"root", "/", true},
		{"trailing empty segment", "/foo/", true},
		{"unicode", "/größe/1", true},
		{"empty", "", false},
		{"no leading slash", "foo/bar", false},
		{"space", "/foo bar", false},
		{"star", "/foo/*", false},
		{"question", "/foo/?", false},
		{"bracket", "/foo/[a]", false},
		{"brace", "/foo/{a}", false},
		{"hash", "/#bundle", false},
		{"comma", "/a,b", false},
		{"tab", "/a\tb", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			if tt.valid && err != nil {
				t.Errorf("Validate(%q) = %v, want nil", tt.input, err)
			}
			if !tt.valid {
				if err == nil {
					t.Fatalf("Validate(%q) = nil, want error", tt.input)
				}
				if !errors.Is(err, ErrInvalidAddress) {
					t.Errorf("Validate(%q) error %v does not match ErrInvalidAddress", tt.input, err)
				}
				var ae *AddressError
				if !errors.As(err, &ae) {
					t.Errorf("Validate(%q) error is %T, want *AddressError", tt.input, err)
				}
			}
		})
	}
}

func TestParse_Interns(t *testing.T) {
	a, err := Parse("/synth/1/freq")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	b := Intern("/synth/1/freq")
	if a != b {
		t.Errorf("interned addresses differ: %q vs %q", a, b)
	}

	if _, err := Parse("synth"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Parse(invalid) error = %v, want ErrInvalidAddress", err)
	}
}

func TestMustParse_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse did not panic on invalid address")
		}
	}()
	MustParse("bad address")
}

func TestAddressError_Message(t *testing.T) {
	err := Validate("/foo bar")
	want := `invalid address "/foo bar": whitespace or control character at offset 4`
	if err == nil || err.Error() != want {
		t.Errorf("Error() = %v, want %q", err, want)
	}
}

func TestIsPattern(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"/synth/1/freq", false},
		{"/a,b", false},
		{"/synth/*/freq", true},
		{"/synth/?", true},
		{"/synth/[12]", true},
		{"/synth/{a,b}", true},
	}
	for _, tt := range tests {
		if got := IsPattern(tt.input); got != tt.want {
			t.Errorf("IsPattern(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		input   string
		wantErr error
	}{
		{"/synth/1/freq", nil},
		{"/synth/*/freq", nil},
		{"/synth/{1,2}/freq", nil},
		{"/a b", ErrInvalidAddress},
		{"/a,b", ErrInvalidAddress},
		{"/synth/[1", ErrInvalidPattern},
		{"synth/*", ErrInvalidPattern},
	}
	for _, tt := range tests {
		a, err := ParseTarget(tt.input)
		if tt.wantErr == nil {
			if err != nil || string(a) != tt.input {
				t.Errorf("ParseTarget(%q) = %q, %v", tt.input, a, err)
			}
			continue
		}
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ParseTarget(%q) error = %v, want %v", tt.input, err, tt.wantErr)
		}
	}
}
