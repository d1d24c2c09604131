package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"testing"

	"CryptoSignal/internal/domain/models"
	"CryptoSignal/internal/scoreconfig"
	"CryptoSignal/internal/scoring/normalize"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func loadDoc(t *testing.T) *scoreconfig.Document {
	t.Helper()
	doc, err := scoreconfig.Load(filepath.Join("..", "..", "config", "scoring.yaml"))
	require.NoError(t, err)
	return doc
}

func TestDecodeSnapshots(t *testing.T) {
	one, err := decodeSnapshots([]byte(`  {"symbol":"BTCUSDT"}`))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "BTCUSDT", one[0].Symbol)

	many, err := decodeSnapshots([]byte(`[{"symbol":"BTCUSDT"},{"symbol":"ETHUSDT"}]`))
	require.NoError(t, err)
	assert.Len(t, many, 2)

	_, err = decodeSnapshots([]byte(`"nope"`))
	assert.Error(t, err)
}

func TestDeriveScalesPrintsFragment(t *testing.T) {
	doc := loadDoc(t)
	xs := make([]float64, 200)
	for i := range xs {
		xs[i] = math.Sin(float64(i)*0.37) * 3
	}
	samples := map[string][]float64{
		"trend":      xs,
		"momentum":   {1, 2},
		"volatility": xs,
	}

	var out, errOut bytes.Buffer
	require.NoError(t, deriveScales(doc, samples, 65, &out, &errOut))

	var frag scaleFragment
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &frag))
	require.Len(t, frag.Factors, 1)
	assert.Equal(t, "trend", frag.Factors[0].Name)

	want, err := normalize.DeriveScale(xs, 65)
	require.NoError(t, err)
	assert.InDelta(t, want, frag.Factors[0].Normalization.Scale, 1e-9)

	assert.Contains(t, errOut.String(), "momentum:")
	assert.NotContains(t, errOut.String(), "volatility")
}

func TestDeriveScalesNothingUsable(t *testing.T) {
	doc := loadDoc(t)
	var out, errOut bytes.Buffer
	err := deriveScales(doc, map[string][]float64{}, 65, &out, &errOut)
	assert.ErrorContains(t, err, "no factor had usable samples")
	assert.Zero(t, out.Len())
}

func TestDecodeSamplesMap(t *testing.T) {
	doc := loadDoc(t)
	m, err := decodeSamples([]byte(`{"trend":[1,2,3]}`), doc)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, m["trend"])
}

func TestRunScanRejectsThinSnapshot(t *testing.T) {
	doc := loadDoc(t)
	snaps := []*models.AssetSnapshot{{Symbol: "BTCUSDT"}}

	var out bytes.Buffer
	require.NoError(t, runScan(context.Background(), doc, snaps, 2, &out))

	var got []models.Decision
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "BTCUSDT", got[0].Symbol)
	assert.False(t, got[0].Publish)
}
