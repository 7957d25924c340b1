package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeSubjects(t *testing.T) {
	valid := `["Analyse","Algebre"]`
	broken := "Analyse, Algebre"
	null := "null"

	assert.Equal(t, []string{"Analyse", "Algebre"}, DecodeSubjects(&valid))
	assert.Equal(t, []string{}, DecodeSubjects(&broken))
	assert.Equal(t, []string{}, DecodeSubjects(&null))
	assert.Equal(t, []string{}, DecodeSubjects(nil))
}

func TestEncodeSubjectsNormalizes(t *testing.T) {
	assert.Equal(t, `["Analyse","Algebre","Physique"]`, EncodeSubjects([]string{" Analyse , Algebre", "", "Physique "}))
	assert.Equal(t, `[]`, EncodeSubjects(nil))
}
