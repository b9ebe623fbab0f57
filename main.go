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

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ttbt-io/wicketkeeper/backend"
)

var (
	addr           = flag.String("addr", ":8080", "The TCP address to listen to")
	httpAdvertise  = flag.String("http-advertise", "", "Address other cluster nodes use to reach this node's API (default: -addr)")
	useMockAuth    = flag.Bool("use-mock-auth", false, "Use Mock Authentication. For testing purposes only.")
	debugMode      = flag.Bool("debug", false, "Enable debug mode")
	raftEnabled    = flag.Bool("raft", false, "Enable Raft consensus")
	raftBind       = flag.String("raft-bind", "127.0.0.1:8081", "Address for Raft TCP transport")
	raftAdvertise  = flag.String("raft-advertise", "", "Public address for Raft traffic")
	raftSecret     = flag.String("raft-secret", "", "Shared secret for cluster authentication")
	raftBootstrap  = flag.Bool("raft-bootstrap", false, "Bootstrap the Raft cluster (only for first node)")
	raftJoin       = flag.String("raft-join", "", "HTTP address of a cluster member to join")
	raftNodeID     = flag.String("raft-node-id", "", "Raft node id (default: generated and kept in the data dir)")
	dataDir        = flag.String("data-dir", "data", "Directory for match and team data")
	tlsCert        = flag.String("tls-cert", "", "Path to HTTP TLS certificate")
	tlsKey         = flag.String("tls-key", "", "Path to HTTP TLS key")
	authCookieName = flag.String("auth-cookie-name", "wicketkeeper_auth", "Name of the cookie containing the JWT")
	authJWKSURL    = flag.String("auth-jwks-url", "", "URL of the JWKS used to verify JWTs")
)

// main starts the web server and registers the API handlers.
func main() {
	flag.Parse()

	if *raftEnabled && *raftSecret == "" {
		log.Fatal("--raft-secret is required when Raft is enabled")
	}

	var cert *tls.Certificate
	if *tlsCert != "" && *tlsKey != "" {
		c, err := tls.LoadX509KeyPair(*tlsCert, *tlsKey)
		if err != nil {
			log.Fatalf("Failed to load TLS cert/key: %v", err)
		}
		cert = &c
	}

	store, masterKey, err := backend.OpenStorage(*dataDir, true)
	if err != nil {
		log.Fatalf("Critical Security Error: %v", err)
	}

	server, err := backend.StartServer(backend.Options{
		Addr:                  *addr,
		Cert:                  cert,
		DataDir:               *dataDir,
		UseMockAuth:           *useMockAuth,
		Debug:                 *debugMode,
		Storage:               store,
		MasterKey:             masterKey,
		RaftEnabled:           *raftEnabled,
		RaftBind:              *raftBind,
		RaftAdvertise:         *raftAdvertise,
		RaftSecret:            *raftSecret,
		RaftBootstrap:         *raftBootstrap,
		RaftJoin:              *raftJoin,
		RaftNodeID:            *raftNodeID,
		HTTPAdvertise:         *httpAdvertise,
		UseProductionTimeouts: true,
		AuthCookieName:        *authCookieName,
		AuthJWKSURL:           *authJWKSURL,
	})
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Wait for interrupt signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	} else {
		log.Println("Gracefully stopped.")
	}
}
