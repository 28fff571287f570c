package automation

import "testing"

func TestVerifySignature_ValidPayload(t *testing.T) {
	payload := []byte(`{"meta":{"action":"added","object":"person","id":"42","timestamp":1700000000}}`)
	secret := "shared-secret"

	sig := ComputeSignature(payload, secret)
	if !VerifySignature(payload, sig, secret) {
		t.Fatalf("expected signature to verify")
	}
}

func TestVerifySignature_MutatedPayloadRejected(t *testing.T) {
	payload := []byte(`{"amount":100}`)
	secret := "shared-secret"
	sig := ComputeSignature(payload, secret)

	tampered := []byte(`{"amount":999}`)
	if VerifySignature(tampered, sig, secret) {
		t.Fatalf("expected mutated payload to fail verification")
	}
}

func TestVerifySignature_WrongSecretRejected(t *testing.T) {
	payload := []byte(`{"amount":100}`)
	sig := ComputeSignature(payload, "secret-a")
	if VerifySignature(payload, sig, "secret-b") {
		t.Fatalf("expected signature under wrong secret to fail")
	}
}

func TestVerifySignature_EmptySignatureRejected(t *testing.T) {
	if VerifySignature([]byte("{}"), "", "secret") {
		t.Fatalf("empty signature must never verify")
	}
}
