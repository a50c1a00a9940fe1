package cose

import (
	"crypto/x509"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	gocose "github.com/veraison/go-cose"

	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

// CBORTagSign1 is the CBOR tag of COSE_Sign1.
const CBORTagSign1 = 18

// ParseSign1 parses a tagged COSE_Sign1 message.
func ParseSign1(data []byte) (*Message, error) {
	sign1, err := unmarshalSign1(data)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Payload:    sign1.Payload,
		Signature:  sign1.Signature,
		RawMessage: data,
	}

	if alg, err := sign1.Headers.Protected.Algorithm(); err == nil {
		msg.Algorithm = alg
	}
	if kid, ok := sign1.Headers.Protected[gocose.HeaderLabelKeyID]; ok {
		if b, ok := kid.([]byte); ok {
			msg.KeyID = b
		}
	}
	if ct, ok := sign1.Headers.Protected[gocose.HeaderLabelContentType]; ok {
		if s, ok := ct.(string); ok {
			msg.ContentType = s
		}
	}
	if x5chain, ok := sign1.Headers.Protected[HeaderX5Chain]; ok {
		msg.Certificate = extractCertFromX5Chain(x5chain)
	}

	return msg, nil
}

func unmarshalSign1(data []byte) (*gocose.Sign1Message, error) {
	if len(data) == 0 || data[0] != 0xc0+CBORTagSign1 {
		return nil, &COSEError{Op: "parse", Err: fmt.Errorf("not a tagged COSE_Sign1 message: %w", pkicrypto.ErrMalformedEncoding)}
	}
	var sign1 gocose.Sign1Message
	if err := cbor.Unmarshal(data, &sign1); err != nil {
		return nil, &COSEError{Op: "parse", Err: fmt.Errorf("%v: %w", err, pkicrypto.ErrMalformedEncoding)}
	}
	return &sign1, nil
}

// extractCertFromX5Chain extracts the first certificate from an x5chain header value.
func extractCertFromX5Chain(x5chain any) *x509.Certificate {
	var der []byte
	switch v := x5chain.(type) {
	case []byte:
		der = v
	case []any:
		if len(v) > 0 {
			der, _ = v[0].([]byte)
		}
	case [][]byte:
		if len(v) > 0 {
			der = v[0]
		}
	}
	if der == nil {
		return nil
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil
	}
	return cert
}
