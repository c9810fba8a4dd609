package main

import (
	"os"
	"time"
)

const (
	defaultListenAddr   = ":8487"
	defaultSQLiteDBPath = "notebook_relay.db"

	notebookAppOrigin  = "https://notebooklm.google.com"
	notebookAppReferer = "https://notebooklm.google.com/"
	batchExecutePath   = "/_/LabsTailwindUi/data/batchexecute"
	defaultSourcePath  = "/"

	// Session tokens are scraped out of the served app shell. The keys are the
	// JSON property names the shell embeds them under.
	actionTokenKey = "SNlM0e"
	blTokenKey     = "cfb2h"

	rpcCallTimeout    = 30 * time.Second
	tokenFetchTimeout = 20 * time.Second

	deleteBatchSize = 20

	defaultChunkSize    = 225000
	defaultChunkOverlap = 1000
	chunkSearchWindow   = 200

	defaultQueueItemDelay  = time.Second
	defaultQueueChunkDelay = 300 * time.Millisecond

	sourceLoadWorkers      = 3
	artifactExtractWorkers = 2

	tabLoadTimeout    = 15 * time.Second
	tabSettleDelay    = 2 * time.Second
	inspectorTimeout  = 20 * time.Second
	extractionPollMax = 15 * time.Second
	extractionPollGap = 500 * time.Millisecond
)

func listenAddr() string {
	if addr := os.Getenv("NOTEBOOK_RELAY_ADDR"); addr != "" {
		return addr
	}
	return defaultListenAddr
}

func sqliteDBPath() string {
	if path := os.Getenv("NOTEBOOK_RELAY_DB"); path != "" {
		return path
	}
	return defaultSQLiteDBPath
}
