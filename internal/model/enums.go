package model

type PairingState string

const (
	PairingStateCreated  PairingState = "created"
	PairingStateRedeemed PairingState = "redeemed"
	PairingStateExpired  PairingState = "expired"
)
