// Command gen-keys generates a full account — identity key pair, signed
// pre-key, one-time pre-key batch — and prints it.
package main

import (
	"context"
	"fmt"
	"time"

	"e2ee/account"
	"e2ee/addr"
	"e2ee/crypto/suite"
	"e2ee/persistence/memstore"
	"e2ee/protocol/fingerprint"
)

func main() {
	ctx := context.Background()
	s := suite.Default()
	store := memstore.New()

	address := addr.New("demo-user", "device-1", "example.org")
	acc, err := account.CreateAccount(ctx, store, s, address, time.Now().UnixMilli())
	if err != nil {
		fmt.Printf("failed to create account: %v\n", err)
		return
	}

	fmt.Printf("ADDRESS: %s\n", acc.Address.String())
	fmt.Printf("PACK_ID: %s\n", acc.PackID)
	fmt.Printf("IDENTITY_AGREEMENT_PRIV: %x\n", acc.IdentityKey.AsymKeyPair.Priv)
	fmt.Printf("IDENTITY_AGREEMENT_PUB:  %x\n", acc.IdentityKey.AsymKeyPair.Pub)
	fmt.Printf("IDENTITY_SIGN_PRIV: %x\n", acc.IdentityKey.SignKeyPair.Priv)
	fmt.Printf("IDENTITY_SIGN_PUB:  %x\n", acc.IdentityKey.SignKeyPair.Pub)
	fmt.Printf("SIGNED_PRE_KEY[%d]: pub=%x sig=%x\n", acc.CurrentSignedPreKey.ID, acc.CurrentSignedPreKey.KeyPair.Pub, acc.CurrentSignedPreKey.Signature)
	fmt.Printf("ONE_TIME_PRE_KEYS: %d generated (ids %d..%d)\n", len(acc.OneTimePreKeys), acc.OneTimePreKeys[0].ID, acc.OneTimePreKeys[len(acc.OneTimePreKeys)-1].ID)

	digits, err := fingerprint.Digits(acc.IdentityKey.AsymKeyPair.Pub, acc.Address)
	if err != nil {
		fmt.Printf("failed to derive fingerprint: %v\n", err)
		return
	}
	fmt.Printf("SAFETY_NUMBER: %v\n", digits)
}
