// keygen generates subscriber keypairs and signs terms hashes, for dev
// and demo flows where no wallet exists.
package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/technosupport/ts-licensing/internal/signer"
)

func main() {
	signHash := flag.String("sign", "", "Terms hash (0x-hex) to sign instead of generating a key")
	keyHex := flag.String("key", "", "Private key (hex) used with -sign")
	flag.Parse()

	if *signHash == "" {
		generate()
		return
	}

	if *keyHex == "" {
		log.Fatal("-sign requires -key")
	}
	raw, err := hex.DecodeString(*keyHex)
	if err != nil || len(raw) != ed25519.PrivateKeySize {
		log.Fatal("invalid private key")
	}
	priv := ed25519.PrivateKey(raw)

	h, err := signer.ParseHash(*signHash)
	if err != nil {
		log.Fatalf("invalid hash: %v", err)
	}

	sig := signer.Sign(priv, h)
	fmt.Printf("signature: 0x%x\n", sig)
	os.Exit(0)
}

func generate() {
	pub, priv, addr, err := signer.GenerateKey()
	if err != nil {
		log.Fatalf("keygen: %v", err)
	}

	fmt.Printf("address:     %s\n", addr.Hex())
	fmt.Printf("public key:  %x\n", pub)
	fmt.Printf("private key: %x\n", priv)
}
