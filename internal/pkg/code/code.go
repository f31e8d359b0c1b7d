// Package code generates the one-time credentials used by the MFA flow:
// 6-digit challenge codes and 8-character backup codes.
package code

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const backupAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	BackupCodeLength = 8
	BackupCodeCount  = 8
)

// Numeric returns a uniformly random 6-digit code, zero-padded.
func Numeric() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate numeric code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Backup returns a single backup code.
func Backup() (string, error) {
	b := make([]byte, BackupCodeLength)
	for i := range b {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(backupAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generate backup code: %w", err)
		}
		b[i] = backupAlphabet[idx.Int64()]
	}
	return string(b), nil
}

// BackupSet returns a fresh batch of BackupCodeCount backup codes.
func BackupSet() ([]string, error) {
	codes := make([]string, 0, BackupCodeCount)
	seen := make(map[string]struct{}, BackupCodeCount)
	for len(codes) < BackupCodeCount {
		c, err := Backup()
		if err != nil {
			return nil, err
		}
		// DynamoDB string sets reject duplicate members.
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		codes = append(codes, c)
	}
	return codes, nil
}
