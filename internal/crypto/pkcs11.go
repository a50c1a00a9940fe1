//go:build cgo

// Package crypto provides HSM-backed signers for the signature core.
// This file implements HSM support via PKCS#11.
package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"sync"

	"github.com/miekg/pkcs11"

	pkicrypto "github.com/remiblancher/sigcore/pkg/crypto"
)

// PKCS11Signer signs with a key held in a PKCS#11 token.
//
// RSA keys are driven with the raw CKM_RSA_X_509 mechanism: the EMSA block
// is built locally, so every digest of the registry (including SHA-3 and
// SHAKE with PSS) works regardless of token support. EC keys use CKM_ECDSA,
// whose plain r||s output is converted to DER.
// Sessions are acquired from the pool for each operation and released after.
type PKCS11Signer struct {
	reg       *pkicrypto.Registry
	pool      *PKCS11SessionPool
	keyHandle pkcs11.ObjectHandle
	pub       crypto.PublicKey
	mu        sync.Mutex
	closed    bool
}

// Ensure PKCS11Signer implements crypto.Signer.
var _ crypto.Signer = (*PKCS11Signer)(nil)

// NewPKCS11Signer creates a new PKCS#11 signer. A nil registry selects the
// default registry.
func NewPKCS11Signer(cfg PKCS11Config, reg *pkicrypto.Registry) (*PKCS11Signer, error) {
	if cfg.ModulePath == "" {
		return nil, fmt.Errorf("PKCS#11 module path is required")
	}
	if cfg.KeyLabel == "" && cfg.KeyID == "" {
		return nil, fmt.Errorf("at least one of key_label or key_id is required")
	}
	if reg == nil {
		reg = pkicrypto.DefaultRegistry()
	}

	slotID, err := findSlotID(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}

	pool, err := GetSessionPool(cfg.ModulePath, slotID, cfg.PIN)
	if err != nil {
		return nil, fmt.Errorf("failed to get session pool: %w", err)
	}

	session, release, err := pool.Acquire()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session: %w", err)
	}
	defer release()

	keyHandle, err := findPrivateKey(pool.Context(), session, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to find private key: %w", err)
	}

	pub, err := extractPublicKey(pool.Context(), session, keyHandle)
	if err != nil {
		return nil, fmt.Errorf("failed to extract public key: %w", err)
	}

	return &PKCS11Signer{
		reg:       reg,
		pool:      pool,
		keyHandle: keyHandle,
		pub:       pub,
	}, nil
}

// findSlotID finds the slot ID for the given configuration.
// This uses a temporary context that is cleaned up after.
func findSlotID(cfg PKCS11Config) (uint, error) {
	if cfg.SlotID != nil {
		return *cfg.SlotID, nil
	}

	ctx := pkcs11.New(cfg.ModulePath)
	if ctx == nil {
		return 0, fmt.Errorf("failed to load PKCS#11 module: %s", cfg.ModulePath)
	}
	defer ctx.Destroy()

	if err := ctx.Initialize(); err != nil {
		if p11err, ok := err.(pkcs11.Error); !ok || p11err != pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED {
			return 0, fmt.Errorf("failed to initialize: %w", err)
		}
	}
	// NOTE: C_Finalize is process-wide and must not be called here.

	return findSlot(ctx, cfg)
}

// findSlot finds the slot matching the configuration.
func findSlot(ctx *pkcs11.Ctx, cfg PKCS11Config) (uint, error) {
	slots, err := ctx.GetSlotList(true)
	if err != nil {
		return 0, fmt.Errorf("failed to get slot list: %w", err)
	}
	if len(slots) == 0 {
		return 0, fmt.Errorf("no slots with tokens found")
	}

	for _, slot := range slots {
		info, err := ctx.GetTokenInfo(slot)
		if err != nil {
			continue
		}
		if cfg.TokenLabel != "" && info.Label == cfg.TokenLabel {
			return slot, nil
		}
		if cfg.TokenSerial != "" && info.SerialNumber == cfg.TokenSerial {
			return slot, nil
		}
	}

	if cfg.TokenLabel != "" {
		return 0, fmt.Errorf("token with label %q not found", cfg.TokenLabel)
	}
	if cfg.TokenSerial != "" {
		return 0, fmt.Errorf("token with serial %q not found", cfg.TokenSerial)
	}

	// If no specific token requested, use the first one
	return slots[0], nil
}

// keyTemplate returns the CKA_LABEL/CKA_ID search attributes of cfg.
func keyTemplate(cfg PKCS11Config, class uint) ([]*pkcs11.Attribute, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, class),
	}
	if cfg.KeyLabel != "" {
		template = append(template, pkcs11.NewAttribute(pkcs11.CKA_LABEL, cfg.KeyLabel))
	}
	if cfg.KeyID != "" {
		id, err := hex.DecodeString(cfg.KeyID)
		if err != nil {
			return nil, fmt.Errorf("invalid key_id hex: %w", err)
		}
		template = append(template, pkcs11.NewAttribute(pkcs11.CKA_ID, id))
	}
	return template, nil
}

// findPrivateKey finds the private key matching the configuration.
func findPrivateKey(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, cfg PKCS11Config) (pkcs11.ObjectHandle, error) {
	template, err := keyTemplate(cfg, pkcs11.CKO_PRIVATE_KEY)
	if err != nil {
		return 0, err
	}

	if err := ctx.FindObjectsInit(session, template); err != nil {
		return 0, fmt.Errorf("failed to init find objects: %w", err)
	}
	defer func() { _ = ctx.FindObjectsFinal(session) }()

	objs, _, err := ctx.FindObjects(session, 2)
	if err != nil {
		return 0, fmt.Errorf("failed to find objects: %w", err)
	}

	if len(objs) == 0 {
		return 0, fmt.Errorf("private key not found")
	}
	if len(objs) > 1 {
		return 0, fmt.Errorf("multiple keys found, please specify both key_label and key_id")
	}

	return objs[0], nil
}

// findPublicKeyForPrivate finds the public key object with the same
// CKA_ID, CKA_LABEL and CKA_KEY_TYPE as a private key.
func findPublicKeyForPrivate(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, privHandle pkcs11.ObjectHandle) (pkcs11.ObjectHandle, error) {
	attrs, err := ctx.GetAttributeValue(session, privHandle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_ID, nil),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, nil),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, nil),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get private key ID/label/type: %w", err)
	}

	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_ID, attrs[0].Value),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, attrs[1].Value),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, attrs[2].Value),
	}

	if err := ctx.FindObjectsInit(session, template); err != nil {
		return 0, fmt.Errorf("failed to init find public key: %w", err)
	}
	defer func() { _ = ctx.FindObjectsFinal(session) }()

	objs, _, err := ctx.FindObjects(session, 1)
	if err != nil {
		return 0, fmt.Errorf("failed to find public key: %w", err)
	}
	if len(objs) == 0 {
		return 0, fmt.Errorf("public key not found for private key")
	}

	return objs[0], nil
}

// extractPublicKey reads the public half of a private key handle.
func extractPublicKey(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, keyHandle pkcs11.ObjectHandle) (crypto.PublicKey, error) {
	attrs, err := ctx.GetAttributeValue(session, keyHandle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, nil),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get key type: %w", err)
	}

	switch keyType := bytesToUint(attrs[0].Value); keyType {
	case pkcs11.CKK_EC:
		return extractECPublicKey(ctx, session, keyHandle)
	case pkcs11.CKK_RSA:
		return extractRSAPublicKey(ctx, session, keyHandle)
	default:
		return nil, fmt.Errorf("unsupported key type: 0x%X", keyType)
	}
}

// extractECPublicKey reads CKA_EC_PARAMS and CKA_EC_POINT.
func extractECPublicKey(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, keyHandle pkcs11.ObjectHandle) (crypto.PublicKey, error) {
	attrs, err := ctx.GetAttributeValue(session, keyHandle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, nil),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get EC params: %w", err)
	}

	curve, err := parseECParams(attrs[0].Value)
	if err != nil {
		return nil, err
	}

	pubHandle, err := findPublicKeyForPrivate(ctx, session, keyHandle)
	if err != nil {
		return nil, err
	}
	pointAttrs, err := ctx.GetAttributeValue(session, pubHandle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_EC_POINT, nil),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get EC point: %w", err)
	}

	// CKA_EC_POINT is a DER OCTET STRING; some tokens return the bare point.
	point := pointAttrs[0].Value
	var unwrapped []byte
	if rest, err := asn1.Unmarshal(point, &unwrapped); err == nil && len(rest) == 0 {
		point = unwrapped
	}

	//nolint:staticcheck // elliptic.Unmarshal is deprecated for ECDH but we need ECDSA
	x, y := elliptic.Unmarshal(curve, point)
	if x == nil {
		return nil, fmt.Errorf("failed to unmarshal EC point")
	}

	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// extractRSAPublicKey reads CKA_MODULUS and CKA_PUBLIC_EXPONENT.
func extractRSAPublicKey(ctx *pkcs11.Ctx, session pkcs11.SessionHandle, keyHandle pkcs11.ObjectHandle) (crypto.PublicKey, error) {
	pubHandle, err := findPublicKeyForPrivate(ctx, session, keyHandle)
	if err != nil {
		return nil, err
	}

	attrs, err := ctx.GetAttributeValue(session, pubHandle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_MODULUS, nil),
		pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, nil),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get RSA attributes: %w", err)
	}

	n := new(big.Int).SetBytes(attrs[0].Value)
	// RSA public exponent is a big integer (big-endian), not CK_ULONG
	e := int(new(big.Int).SetBytes(attrs[1].Value).Int64())

	return &rsa.PublicKey{N: n, E: e}, nil
}

// parseECParams maps the DER curve OID of CKA_EC_PARAMS to a curve.
func parseECParams(params []byte) (elliptic.Curve, error) {
	var oid asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(params, &oid); err != nil {
		return nil, fmt.Errorf("failed to parse EC params OID: %w", err)
	}

	switch {
	case oid.Equal(asn1.ObjectIdentifier{1, 2, 840, 10045, 3, 1, 7}):
		return elliptic.P256(), nil
	case oid.Equal(asn1.ObjectIdentifier{1, 3, 132, 0, 34}):
		return elliptic.P384(), nil
	case oid.Equal(asn1.ObjectIdentifier{1, 3, 132, 0, 35}):
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("unsupported EC curve OID: %v", oid)
	}
}

// bytesToUint converts a byte slice to uint for CK_ULONG values.
// CK_ULONG is stored in native byte order (little-endian on x86/ARM).
// NOTE: Do NOT use for "Big integer" attributes like CKA_PUBLIC_EXPONENT.
func bytesToUint(b []byte) uint {
	var result uint
	for i := len(b) - 1; i >= 0; i-- {
		result = result<<8 | uint(b[i])
	}
	return result
}

// Public returns the public key.
func (s *PKCS11Signer) Public() crypto.PublicKey {
	return s.pub
}

// Sign implements crypto.Signer. For RSA keys *rsa.PSSOptions selects
// EMSA-PSS and any other opts PKCS#1 v1.5. ECDSA signatures are DER.
func (s *PKCS11Signer) Sign(random io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	h, err := pkicrypto.HashFromCrypto(opts.HashFunc())
	if err != nil {
		return nil, err
	}

	var alg pkicrypto.SignAlgo
	switch s.pub.(type) {
	case *rsa.PublicKey:
		if pssOpts, ok := opts.(*rsa.PSSOptions); ok {
			if pssOpts.SaltLength > 0 && pssOpts.SaltLength != h.Size() {
				return nil, fmt.Errorf("PSS salt length %d is not supported, use %d", pssOpts.SaltLength, h.Size())
			}
			alg, err = pkicrypto.ParseSignAlgo(h.String() + "withRSAandMGF1")
		} else {
			alg, err = pkicrypto.ParseSignAlgo(h.String() + "withRSA")
		}
	case *ecdsa.PublicKey:
		alg, err = pkicrypto.ParseSignAlgo(h.String() + "withECDSA")
	default:
		return nil, fmt.Errorf("unsupported key type for signing")
	}
	if err != nil {
		return nil, err
	}
	return s.SignDigest(random, alg, digest)
}

// SignDigest signs a precomputed digest with alg. Plain-ECDSA algorithms
// return the fixed-width r||s form produced by the token.
func (s *PKCS11Signer) SignDigest(random io.Reader, alg pkicrypto.SignAlgo, digest []byte) ([]byte, error) {
	var mech *pkcs11.Mechanism
	var data []byte
	var err error

	switch pub := s.pub.(type) {
	case *rsa.PublicKey:
		bits := pub.N.BitLen()
		switch alg.Family() {
		case pkicrypto.SignRSAPKCS1:
			data, err = s.reg.EncodePKCS1v15(digest, alg.Hash(), bits)
		case pkicrypto.SignRSAPSS:
			data, err = pkicrypto.EncodePSS(alg.Hash(), digest, alg.MGFHash(), alg.SaltLength(), bits, random)
		default:
			return nil, fmt.Errorf("algorithm %s cannot be used with an RSA key", alg)
		}
		if err != nil {
			return nil, err
		}
		// CKM_RSA_X_509 expects a modulus-sized input.
		if k := (bits + 7) / 8; len(data) < k {
			padded := make([]byte, k)
			copy(padded[k-len(data):], data)
			data = padded
		}
		mech = pkcs11.NewMechanism(pkcs11.CKM_RSA_X_509, nil)
	case *ecdsa.PublicKey:
		if alg.Family() != pkicrypto.SignECDSA && alg.Family() != pkicrypto.SignPlainECDSA {
			return nil, fmt.Errorf("algorithm %s cannot be used with an EC key", alg)
		}
		if len(digest) != alg.Hash().Size() {
			return nil, fmt.Errorf("digest must be %d bytes for %s, got %d", alg.Hash().Size(), alg, len(digest))
		}
		data = digest
		mech = pkcs11.NewMechanism(pkcs11.CKM_ECDSA, nil)
	default:
		return nil, fmt.Errorf("unsupported key type for signing")
	}

	sig, err := s.rawSign(mech, data)
	if err != nil {
		return nil, err
	}

	if alg.Family() == pkicrypto.SignECDSA {
		return pkicrypto.DSAPlainToDER(sig)
	}
	return sig, nil
}

// rawSign runs C_SignInit/C_Sign on a pooled session.
func (s *PKCS11Signer) rawSign(mech *pkcs11.Mechanism, data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("signer is closed")
	}

	session, release, err := s.pool.Acquire()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session: %w", err)
	}
	defer release()

	ctx := s.pool.Context()
	if err := ctx.SignInit(session, []*pkcs11.Mechanism{mech}, s.keyHandle); err != nil {
		return nil, fmt.Errorf("failed to init sign: %w", err)
	}

	sig, err := ctx.Sign(session, data)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// Close marks the signer as closed.
// The session pool is shared and is released by CloseAllPools().
func (s *PKCS11Signer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ListHSMSlots lists available slots in a PKCS#11 module.
// This uses a temporary context since no session is required for slot listing.
func ListHSMSlots(modulePath string) (*HSMInfo, error) {
	ctx := pkcs11.New(modulePath)
	if ctx == nil {
		return nil, fmt.Errorf("failed to load PKCS#11 module: %s", modulePath)
	}
	defer ctx.Destroy()

	if err := ctx.Initialize(); err != nil {
		if p11err, ok := err.(pkcs11.Error); !ok || p11err != pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED {
			return nil, fmt.Errorf("failed to initialize: %w", err)
		}
	}

	slots, err := ctx.GetSlotList(false)
	if err != nil {
		return nil, fmt.Errorf("failed to get slot list: %w", err)
	}

	info := &HSMInfo{
		ModulePath: modulePath,
		Slots:      make([]SlotInfo, 0, len(slots)),
	}

	for _, slot := range slots {
		slotInfo, err := ctx.GetSlotInfo(slot)
		if err != nil {
			continue
		}

		si := SlotInfo{
			ID:          slot,
			Description: slotInfo.SlotDescription,
			HasToken:    slotInfo.Flags&pkcs11.CKF_TOKEN_PRESENT != 0,
		}

		if si.HasToken {
			if tokenInfo, err := ctx.GetTokenInfo(slot); err == nil {
				si.TokenLabel = tokenInfo.Label
				si.TokenSerial = tokenInfo.SerialNumber
				si.Manufacturer = tokenInfo.ManufacturerID
			}
		}

		info.Slots = append(info.Slots, si)
	}

	return info, nil
}
