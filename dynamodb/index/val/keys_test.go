package val_test

import (
	"testing"

	"github.com/acksell/larder/dynamodb/index/val"
	"github.com/stretchr/testify/assert"
)

func TestFmt(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
	}{
		{"simple format", "RECIPE#{id}"},
		{"multiple placeholders", "{createdAt}#{id}"},
		{"field between literals", "USER#{userId}#MEALPLAN"},
		{"constant pattern", "METADATA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := val.Fmt(tt.pattern)
			if v.Format == nil {
				t.Fatal("Format should not be nil")
			}
			if v.Format.String() != tt.pattern {
				t.Errorf("Format.String() = %q, want %q", v.Format.String(), tt.pattern)
			}
		})
	}
}

func TestFmt_Panics(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
	}{
		{"empty pattern", ""},
		{"empty field ref", "USER#{}"},
		{"blank field ref", "USER#{ }"},
		{"separator inside ref", "USER#{a#b}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("Fmt(%q) did not panic", tt.pattern)
				}
			}()
			val.Fmt(tt.pattern)
		})
	}
}

func TestFmtSpec_IsConstant(t *testing.T) {
	tests := []struct {
		pattern string
		want    bool
	}{
		{"METADATA", true},
		{"RECIPE#{id}", false},
		{"{id}", false},
		{"PREFIX#{a}#{b}SUFFIX", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, val.Fmt(tt.pattern).Format.IsConstant())
		})
	}
}

func TestFmtSpec_FieldRefs(t *testing.T) {
	assert.Nil(t, val.Fmt("METADATA").Format.FieldRefs())
	assert.Equal(t, []string{"createdAt", "id"}, val.Fmt("{createdAt}#{id}").Format.FieldRefs())
}

func TestRender(t *testing.T) {
	fields := map[string]string{"id": "r1", "createdAt": "2024-01-02", "authorId": ""}

	got, ok := val.Fmt("RECIPE#{id}").Render(fields)
	assert.True(t, ok)
	assert.Equal(t, "RECIPE#r1", got)

	got, ok = val.Fmt("{createdAt}#{id}").Render(fields)
	assert.True(t, ok)
	assert.Equal(t, "2024-01-02#r1", got)

	_, ok = val.Fmt("AUTHOR#{authorId}").Render(fields)
	assert.False(t, ok, "empty field makes the key sparse")

	_, ok = val.Fmt("CATEGORY#{category}").Render(fields)
	assert.False(t, ok, "missing field makes the key sparse")

	got, ok = val.Fmt("PUBLIC#RECIPE").Render(nil)
	assert.True(t, ok)
	assert.Equal(t, "PUBLIC#RECIPE", got)
}

func TestFmtSpec_Prefix(t *testing.T) {
	spec := val.Fmt("{date}#{id}").Format
	assert.Equal(t, "2024-05-01#", spec.Prefix(map[string]string{"date": "2024-05-01"}))
	assert.Equal(t, "", spec.Prefix(nil))
	assert.Equal(t, "RECIPE#", val.Fmt("RECIPE#{createdAt}#{id}").Format.Prefix(nil))
}

func TestValDef_IsZero(t *testing.T) {
	var zero val.ValDef
	assert.True(t, zero.IsZero())
	assert.False(t, val.Fmt("USER#{id}").IsZero())
	assert.Equal(t, "METADATA", val.Fmt("METADATA").Ptr().Format.String())
}

func TestConstantConstructors(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		v := val.String("PROFILE")
		got, ok := v.Render(nil)
		assert.True(t, ok)
		assert.Equal(t, "PROFILE", got)
	})

	t.Run("Number", func(t *testing.T) {
		got, ok := val.Number(42).Render(nil)
		assert.True(t, ok)
		assert.Equal(t, "42", got)

		got, _ = val.Number(1.5).Render(nil)
		assert.Equal(t, "1.5", got)
	})

	t.Run("FromField", func(t *testing.T) {
		v := val.FromField("email")
		got, ok := v.Render(map[string]string{"email": "a@b.c"})
		assert.True(t, ok)
		assert.Equal(t, "a@b.c", got)

		_, ok = v.Render(nil)
		assert.False(t, ok)
	})
}
