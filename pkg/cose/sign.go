package cose

import (
	"context"
	"fmt"

	gocose "github.com/veraison/go-cose"
)

// IssueSign1 creates a tagged COSE_Sign1 message over payload.
func IssueSign1(ctx context.Context, payload []byte, config *MessageConfig) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config == nil || config.Signer == nil {
		return nil, &COSEError{Op: "sign", Err: fmt.Errorf("signer is required")}
	}

	var coseSigner *Signer
	var err error
	if config.Algorithm != 0 {
		coseSigner, err = NewSignerWithAlgorithm(config.Signer, config.Algorithm)
	} else {
		coseSigner, err = NewSigner(config.Signer)
	}
	if err != nil {
		return nil, err
	}

	protected := gocose.ProtectedHeader{
		gocose.HeaderLabelAlgorithm: coseSigner.Algorithm(),
	}
	if cert := config.Certificate; cert != nil {
		protected[gocose.HeaderLabelKeyID] = CertificateFingerprint(cert)
		if config.IncludeCertChain {
			protected[HeaderX5Chain] = [][]byte{cert.Raw}
		}
	}
	if config.ContentType != "" {
		protected[gocose.HeaderLabelContentType] = config.ContentType
	}

	msg := gocose.NewSign1Message()
	msg.Headers = gocose.Headers{Protected: protected}
	msg.Payload = payload

	if err := msg.Sign(nil, nil, coseSigner); err != nil {
		return nil, &COSEError{Op: "sign", Err: err}
	}
	return msg.MarshalCBOR()
}
