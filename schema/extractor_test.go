package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cityWeather struct {
	Temperature   float64 `json:"temperature" description:"Temperature in degrees Fahrenheit"`
	WindDirection string  `json:"wind_direction" description:"Compass direction of the wind"`
	WindSpeed     float64 `json:"wind_speed" description:"Wind speed in mph"`
}

type nestedRecord struct {
	Title string        `json:"title"`
	Inner []cityWeather `json:"inner"`
}

// -------------------- Schema Generation Tests --------------------

func TestExtractor_DefinitionIsStrict(t *testing.T) {
	e, err := NewExtractor[cityWeather]("final_response")
	require.NoError(t, err)
	assert.Equal(t, "final_response", e.Name())

	def := e.Definition()
	assert.Equal(t, "object", def["type"])
	assert.Equal(t, false, def["additionalProperties"])

	props, ok := def["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "temperature")
	assert.Contains(t, props, "wind_direction")
	assert.Contains(t, props, "wind_speed")

	// Strict mode requires every declared property.
	req, ok := def["required"].([]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"temperature", "wind_direction", "wind_speed"}, req)

	// Identifiers from the generator must not leak into declarations.
	assert.NotContains(t, def, "$schema")
	assert.NotContains(t, def, "$id")
}

func TestExtractor_DescriptionsFromTags(t *testing.T) {
	e, err := NewExtractor[cityWeather]("final_response")
	require.NoError(t, err)

	props := e.Definition()["properties"].(map[string]any)
	temp, ok := props["temperature"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Temperature in degrees Fahrenheit", temp["description"])
}

// -------------------- Decode Tests --------------------

func TestExtractor_DecodeSuccess(t *testing.T) {
	e, err := NewExtractor[cityWeather]("final_response")
	require.NoError(t, err)

	record, err := e.Decode([]byte(`{"temperature":65,"wind_direction":"SE","wind_speed":3}`))
	require.NoError(t, err)
	assert.Equal(t, 65.0, record.Temperature)
	assert.Equal(t, "SE", record.WindDirection)
	assert.Equal(t, 3.0, record.WindSpeed)
}

func TestExtractor_DecodeRejectsMissingField(t *testing.T) {
	e, err := NewExtractor[cityWeather]("final_response")
	require.NoError(t, err)

	_, err = e.Decode([]byte(`{"temperature":65,"wind_direction":"SE"}`))
	assert.Error(t, err)
}

func TestExtractor_DecodeRejectsUnknownField(t *testing.T) {
	e, err := NewExtractor[cityWeather]("final_response")
	require.NoError(t, err)

	_, err = e.Decode([]byte(`{"temperature":65,"wind_direction":"SE","wind_speed":3,"humidity":40}`))
	assert.Error(t, err)
}

func TestExtractor_DecodeRejectsWrongType(t *testing.T) {
	e, err := NewExtractor[cityWeather]("final_response")
	require.NoError(t, err)

	_, err = e.Decode([]byte(`{"temperature":"warm","wind_direction":"SE","wind_speed":3}`))
	assert.Error(t, err)
}

func TestExtractor_DecodeRejectsInvalidJSON(t *testing.T) {
	e, err := NewExtractor[cityWeather]("final_response")
	require.NoError(t, err)

	_, err = e.Decode([]byte(`{not json`))
	assert.Error(t, err)
}

func TestExtractor_DecodeMap(t *testing.T) {
	e, err := NewExtractor[cityWeather]("final_response")
	require.NoError(t, err)

	record, err := e.DecodeMap(map[string]any{
		"temperature":    65.0,
		"wind_direction": "SE",
		"wind_speed":     3.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "SE", record.WindDirection)

	_, err = e.DecodeMap(map[string]any{"temperature": 65.0})
	assert.Error(t, err)
}

func TestExtractor_NestedRecord(t *testing.T) {
	e, err := NewExtractor[nestedRecord]("report")
	require.NoError(t, err)

	record, err := e.Decode([]byte(`{"title":"north","inner":[{"temperature":65,"wind_direction":"SE","wind_speed":3}]}`))
	require.NoError(t, err)
	require.Len(t, record.Inner, 1)
	assert.Equal(t, "SE", record.Inner[0].WindDirection)
}
