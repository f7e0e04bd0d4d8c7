package ilp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilderGenericExample(t *testing.T) {
	var b Builder
	b.StartRecord("readings").
		AddTag("city", "London").
		AddTag("make", "Omron").
		AddFloat("temperature", 23.5).
		AddFloat("humidity", 0.343).
		Timestamp(1465839830100400000).
		EndRecord().
		StartRecord("readings").
		AddTag("city", "Bristol").
		AddTag("make", "Honeywell").
		AddFloat("temperature", 23.2).
		AddFloat("humidity", 0.443).
		Timestamp(1465839830100600000).
		EndRecord()

	expected := "readings,city=London,make=Omron temperature=23.5,humidity=0.343 1465839830100400000\n" +
		"readings,city=Bristol,make=Honeywell temperature=23.2,humidity=0.443 1465839830100600000\n"
	assert.Equal(t, expected, b.Finish())
}

func TestBuilderIntegerSample(t *testing.T) {
	var b Builder
	b.StartRecord("temps").
		AddTag("device", "cpu").
		AddTag("location", "south").
		AddInt("value", 96).
		Timestamp(1638202821000000000).
		EndRecord()

	assert.Equal(t, "temps,device=cpu,location=south value=96i 1638202821000000000\n", b.Finish())
}

func TestBuilderStringEscaping(t *testing.T) {
	var b Builder
	b.StartRecord("trade").
		AddTag("ticker", "BTCUSD").
		AddString("description", `this is a "rare" value`).
		AddString("user", "John").
		Timestamp(1638202821000000000).
		EndRecord()

	expected := "trade,ticker=BTCUSD description=\"this is a \\\"rare\\\" value\",user=\"John\" 1638202821000000000\n"
	assert.Equal(t, expected, b.Finish())
}

func TestBuilderNoTimestamp(t *testing.T) {
	var b Builder
	b.StartRecord("m").AddInt("v", 1).EndRecord()
	assert.Equal(t, "m v=1i\n", b.Finish())
}

func TestEscapeTagValueSpace(t *testing.T) {
	var b Builder
	b.StartRecord("apm").
		AddTag("application", "unit test").
		AddString("id", "abc123").
		AddInt("duration", 123).
		Timestamp(42).
		EndRecord()

	assert.Equal(t, "apm,application=unit\\ test id=\"abc123\",duration=123i 42\n", b.Finish())
}

func TestEncodeMetricSingleTagAndField(t *testing.T) {
	line := EncodeMetric(Metric{
		Measurement: "handler",
		Tags:        map[string]string{"action": "create"},
		Fields:      map[string]any{"count": int64(1)},
		TimestampNs: 100,
	})
	assert.Equal(t, "handler,action=create count=1i 100\n", line)
}
