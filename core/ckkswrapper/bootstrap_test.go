package ckkswrapper

import (
	"errors"
	"math"
	"testing"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

func TestCheatBootstrap(t *testing.T) {
	// Create HE context
	heCtx := NewHeContext()

	// Create test data
	data := make([]float64, heCtx.Params.MaxSlots())
	for i := range data {
		data[i] = float64(i) * 0.1
	}

	// Encrypt
	pt := ckks.NewPlaintext(heCtx.Params, heCtx.Params.MaxLevel())
	if err := heCtx.Encoder.Encode(data, pt); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	ct, err := heCtx.Encryptor.EncryptNew(pt)
	if err != nil {
		t.Fatalf("Encryption failed: %v", err)
	}

	originalLevel := ct.Level()
	t.Logf("Original level: %d", originalLevel)

	// Perform cheat bootstrap
	refreshed, err := heCtx.CheatBootstrap(ct)
	if err != nil {
		t.Fatalf("CheatBootstrap failed: %v", err)
	}

	newLevel := refreshed.Level()
	t.Logf("Refreshed level: %d", newLevel)

	// Verify level is restored to max
	if newLevel != heCtx.Params.MaxLevel() {
		t.Errorf("Level = %d, want %d", newLevel, heCtx.Params.MaxLevel())
	}

	// Decrypt and verify data is preserved
	ptOut := heCtx.Decryptor.DecryptNew(refreshed)
	decoded := make([]complex128, heCtx.Params.MaxSlots())
	heCtx.Encoder.Decode(ptOut, decoded)

	// Check values match
	maxErr := 0.0
	for i := 0; i < 100; i++ {
		diff := math.Abs(real(decoded[i]) - data[i])
		if diff > maxErr {
			maxErr = diff
		}
	}

	t.Logf("Max error after bootstrap: %e", maxErr)
	if maxErr > 1e-6 {
		t.Errorf("Data corrupted after bootstrap, max error = %e", maxErr)
	}
}

func TestCheatBootstrapInPlace(t *testing.T) {
	heCtx := NewHeContext()

	data := make([]float64, heCtx.Params.MaxSlots())
	for i := range data {
		data[i] = float64(i%100) * 0.05
	}

	pt := ckks.NewPlaintext(heCtx.Params, heCtx.Params.MaxLevel())
	if err := heCtx.Encoder.Encode(data, pt); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	ct, err := heCtx.Encryptor.EncryptNew(pt)
	if err != nil {
		t.Fatalf("Encryption failed: %v", err)
	}

	// Bootstrap in place
	err = heCtx.CheatBootstrapInPlace(ct)
	if err != nil {
		t.Fatalf("CheatBootstrapInPlace failed: %v", err)
	}

	// Verify level is restored
	if ct.Level() != heCtx.Params.MaxLevel() {
		t.Errorf("Level = %d, want %d", ct.Level(), heCtx.Params.MaxLevel())
	}

	// Verify data
	ptOut := heCtx.Decryptor.DecryptNew(ct)
	decoded := make([]complex128, heCtx.Params.MaxSlots())
	heCtx.Encoder.Decode(ptOut, decoded)

	for i := 0; i < 50; i++ {
		expected := float64(i%100) * 0.05
		if math.Abs(real(decoded[i])-expected) > 1e-6 {
			t.Errorf("Data[%d] = %f, want %f", i, real(decoded[i]), expected)
		}
	}
}

func TestNeedsBootstrap(t *testing.T) {
	heCtx := NewHeContextWithLogN(12)

	pt := ckks.NewPlaintext(heCtx.Params, heCtx.Params.MaxLevel())
	heCtx.Encoder.Encode([]float64{1}, pt)
	ct, _ := heCtx.Encryptor.EncryptNew(pt)
	maxLevel := heCtx.Params.MaxLevel()

	if NeedsBootstrap(ct, 0) {
		t.Errorf("fresh ciphertext at level %d should not need bootstrap", ct.Level())
	}
	if NeedsBootstrap(ct, maxLevel-1) {
		t.Errorf("threshold below level should not trigger")
	}
	if !NeedsBootstrap(ct, maxLevel) {
		t.Errorf("threshold equal to level should trigger")
	}
}

func TestCheatBootstrapAfterOperations(t *testing.T) {
	heCtx := NewHeContextWithLogN(12)
	serverKit := NewPublicServerKit(heCtx.Params)

	// Create test data
	data := make([]float64, heCtx.Params.MaxSlots())
	for i := range data {
		data[i] = 0.5
	}

	pt := ckks.NewPlaintext(heCtx.Params, heCtx.Params.MaxLevel())
	heCtx.Encoder.Encode(data, pt)
	ct, _ := heCtx.Encryptor.EncryptNew(pt)

	initialLevel := ct.Level()
	t.Logf("Initial level: %d", initialLevel)

	// Consume every level with plaintext multiplications
	for ct.Level() > 0 {
		one := ckks.NewPlaintext(heCtx.Params, ct.Level())
		one.Scale = rlwe.NewScale(heCtx.Params.Q()[ct.Level()])
		serverKit.Encoder.Encode([]float64{1}, one)
		var err error
		ct, err = serverKit.Evaluator.MulNew(ct, one)
		if err != nil {
			t.Fatalf("MulNew failed: %v", err)
		}
		if err := serverKit.Evaluator.Rescale(ct, ct); err != nil {
			t.Fatalf("Rescale failed: %v", err)
		}
	}

	if !NeedsBootstrap(ct, 0) {
		t.Fatalf("exhausted ciphertext should need bootstrap")
	}

	// Bootstrap
	refreshed, err := heCtx.CheatBootstrap(ct)
	if err != nil {
		t.Fatalf("CheatBootstrap failed: %v", err)
	}

	t.Logf("Level after bootstrap: %d", refreshed.Level())

	// Should be back to max level
	if refreshed.Level() != heCtx.Params.MaxLevel() {
		t.Errorf("Level = %d, want %d", refreshed.Level(), heCtx.Params.MaxLevel())
	}
}

func TestCheatBootstrapWithoutSecretKey(t *testing.T) {
	heCtx := NewHeContextWithLogN(12)
	public := &HeContext{Params: heCtx.Params, Encoder: heCtx.Encoder, Encryptor: heCtx.Encryptor}

	pt := ckks.NewPlaintext(heCtx.Params, heCtx.Params.MaxLevel())
	heCtx.Encoder.Encode([]float64{1}, pt)
	ct, _ := heCtx.Encryptor.EncryptNew(pt)

	if _, err := public.CheatBootstrap(ct); !errors.Is(err, ErrNoSecretKey) {
		t.Fatalf("err = %v, want ErrNoSecretKey", err)
	}
}
