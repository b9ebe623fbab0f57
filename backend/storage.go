// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/c2FmZQ/storage"
	"github.com/c2FmZQ/storage/crypto"
)

// MasterKeyEnv names the environment variable holding the passphrase of the
// data encryption key.
const MasterKeyEnv = "WK_MASTER_KEY"

// LoadMasterKey opens the master key in dataDir with passphrase, creating
// it on first use when create is set. An empty passphrase means unencrypted
// storage, which is refused if a key file already exists.
func LoadMasterKey(dataDir, passphrase string, create bool) (crypto.MasterKey, error) {
	keyFile := filepath.Join(dataDir, "master.key")
	if passphrase == "" {
		if _, err := os.Stat(keyFile); err == nil {
			return nil, fmt.Errorf("%s exists but %s is not set; refusing to use encrypted data in unencrypted mode", keyFile, MasterKeyEnv)
		}
		return nil, nil
	}
	masterKey, err := crypto.ReadMasterKey([]byte(passphrase), keyFile)
	if err == nil {
		log.Println("Loaded master encryption key.")
		return masterKey, nil
	}
	if !errors.Is(err, os.ErrNotExist) || !create {
		return nil, fmt.Errorf("failed to read master key: %w", err)
	}
	log.Println("Initializing new master encryption key...")
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}
	if masterKey, err = crypto.CreateMasterKey(); err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	if err := masterKey.Save([]byte(passphrase), keyFile); err != nil {
		return nil, fmt.Errorf("failed to save master key: %w", err)
	}
	return masterKey, nil
}

// OpenStorage returns the compressed document store of dataDir, encrypted
// when WK_MASTER_KEY is set.
func OpenStorage(dataDir string, create bool) (*storage.Storage, crypto.MasterKey, error) {
	masterKey, err := LoadMasterKey(dataDir, os.Getenv(MasterKeyEnv), create)
	if err != nil {
		return nil, nil, err
	}
	if masterKey == nil {
		log.Printf("Warning: No %s provided. Data will be stored UNENCRYPTED.", MasterKeyEnv)
	}
	store := storage.New(dataDir, masterKey)
	store.EnableCompression(true)
	return store, masterKey, nil
}
