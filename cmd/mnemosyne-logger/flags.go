package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mnemosyne/mnemosyne/config"
	"github.com/mnemosyne/mnemosyne/internal/flags"
)

// These are all the command line flags the logger supports. If you add to
// this list, remember to apply it in applyFlags below.
var (
	configFileFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "TOML configuration file",
		Category: flags.MiscCategory,
	}

	peerPrefixFlag = &cli.StringFlag{
		Name:     "peer.prefix",
		Usage:    "This logger's own producer prefix",
		Category: flags.LoggerCategory,
	}
	syncPrefixFlag = &cli.StringFlag{
		Name:     "sync.prefix",
		Usage:    "Multicast name for DAG record sync",
		Category: flags.TransportCategory,
	}
	hintPrefixFlag = &cli.StringFlag{
		Name:     "sync.hintprefix",
		Usage:    "Forwarding-hint name for recovery fetches",
		Category: flags.TransportCategory,
	}
	precedingRecordNumFlag = &cli.IntFlag{
		Name:     "record.precedingnum",
		Usage:    "Number of preceding pointers per non-genesis record (>= 2)",
		Value:    config.Defaults.PrecedingRecordNum,
		Category: flags.LoggerCategory,
	}
	recordFetchRetriesFlag = &cli.IntFlag{
		Name:     "sync.recordretries",
		Usage:    "Direct-fetch retry budget per missing range",
		Value:    config.Defaults.RecordFetchRetries,
		Category: flags.TransportCategory,
	}
	hintedFetchRetriesFlag = &cli.IntFlag{
		Name:     "sync.hintedretries",
		Usage:    "Hinted-fetch retry budget per missing range",
		Value:    config.Defaults.HintedFetchRetries,
		Category: flags.TransportCategory,
	}
	seqNoBackupFreqFlag = &cli.Uint64Flag{
		Name:     "checkpoint.freq",
		Usage:    "Number of writes between checkpoint flushes",
		Value:    config.Defaults.SeqNoBackupFreq,
		Category: flags.LoggerCategory,
	}
	maxCountedReplicationFlag = &cli.IntFlag{
		Name:     "replication.quorum",
		Usage:    "Replication counter quorum size R (0 disables it)",
		Value:    config.Defaults.MaxCountedReplication,
		Category: flags.LoggerCategory,
	}
	maxSelfReRefCountFlag = &cli.IntFlag{
		Name:     "record.maxselfreref",
		Usage:    "Times a tip may be re-referenced before retirement from the tip map",
		Value:    config.Defaults.MaxSelfReRefCount,
		Category: flags.LoggerCategory,
	}
	insertBackoffMinFlag = &cli.Int64Flag{
		Name:     "event.backoffmin.ms",
		Usage:    "Minimum randomized publish delay, in milliseconds",
		Value:    config.Defaults.InsertBackoffMinMS,
		Category: flags.LoggerCategory,
	}
	insertBackoffMaxFlag = &cli.Int64Flag{
		Name:     "event.backoffmax.ms",
		Usage:    "Maximum randomized publish delay, in milliseconds",
		Value:    config.Defaults.InsertBackoffMaxMS,
		Category: flags.LoggerCategory,
	}
	selfInsertResetFreqFlag = &cli.IntFlag{
		Name:     "event.selfinsertreset",
		Usage:    "Self-insert-set churn bound",
		Value:    config.Defaults.SelfInsertResetFreq,
		Category: flags.LoggerCategory,
	}
	seenEventTTLFlag = &cli.Int64Flag{
		Name:     "event.seenttl.ms",
		Usage:    "Event dedup window, in milliseconds",
		Value:    config.Defaults.SeenEventTTLMS,
		Category: flags.LoggerCategory,
	}
	startupDelayFlag = &cli.Int64Flag{
		Name:     "event.startupdelay.ms",
		Usage:    "Grace period before accepting events, in milliseconds",
		Value:    config.Defaults.StartupDelayMS,
		Category: flags.LoggerCategory,
	}

	databaseTypeFlag = &cli.StringFlag{
		Name:     "db.type",
		Usage:    "Backing store implementation to use ('durable' or 'memory')",
		Value:    config.Defaults.DatabaseType,
		Category: flags.StorageCategory,
	}
	databasePathFlag = flags.DirectoryFlag("db.path", "", "Directory a durable backend is opened in", flags.StorageCategory)
	databaseCacheFlag = &cli.IntFlag{
		Name:     "db.cache",
		Usage:    "Durable backend cache size, in MB",
		Value:    config.Defaults.DatabaseCache,
		Category: flags.StorageCategory,
	}
	databaseHandlesFlag = &cli.IntFlag{
		Name:     "db.handles",
		Usage:    "Durable backend open file handle budget",
		Value:    config.Defaults.DatabaseHandles,
		Category: flags.StorageCategory,
	}

	adminAddrFlag = &cli.StringFlag{
		Name:     "admin.addr",
		Usage:    "Listen address for the admin/status HTTP API (empty disables it)",
		Category: flags.APICategory,
	}
	adminSecretFlag = flags.DirectoryFlag("admin.jwtsecret", "", "Path to a hex-encoded 32-byte JWT secret for the admin API", flags.APICategory)

	psInterfacePrefixesFlag = &cli.StringSliceFlag{
		Name:     "event.groups",
		Usage:    "Pub/sub interest groups subscribed for event ingress",
		Category: flags.TransportCategory,
	}
	eventFilterFlag = &cli.StringFlag{
		Name:     "event.filter",
		Usage:    "go-bexpr boolean expression events must satisfy before entering the dedup/backoff pipeline",
		Category: flags.LoggerCategory,
	}
	contentTypeFlag = &cli.Uint64Flag{
		Name:     "event.contenttype",
		Usage:    "content_type this logger publishes its own records under",
		Value:    uint64(config.Defaults.ContentType),
		Category: flags.LoggerCategory,
	}

	logFileFlag = &cli.StringFlag{
		Name:     "log.file",
		Usage:    "Write log output to this rotating file instead of stderr",
		Category: flags.LoggingCategory,
	}
)

var appFlags = []cli.Flag{
	configFileFlag,
	peerPrefixFlag,
	syncPrefixFlag,
	hintPrefixFlag,
	precedingRecordNumFlag,
	recordFetchRetriesFlag,
	hintedFetchRetriesFlag,
	seqNoBackupFreqFlag,
	maxCountedReplicationFlag,
	maxSelfReRefCountFlag,
	insertBackoffMinFlag,
	insertBackoffMaxFlag,
	selfInsertResetFreqFlag,
	seenEventTTLFlag,
	startupDelayFlag,
	databaseTypeFlag,
	databasePathFlag,
	databaseCacheFlag,
	databaseHandlesFlag,
	adminAddrFlag,
	adminSecretFlag,
	psInterfacePrefixesFlag,
	eventFilterFlag,
	contentTypeFlag,
	logFileFlag,
}

// applyFlags overlays any flags the user actually set on top of cfg (which
// already holds the config file's values, or Defaults if none was given).
func applyFlags(ctx *cli.Context, cfg *config.Config) {
	if ctx.IsSet(peerPrefixFlag.Name) {
		cfg.PeerPrefix = ctx.String(peerPrefixFlag.Name)
	}
	if ctx.IsSet(syncPrefixFlag.Name) {
		cfg.SyncPrefix = ctx.String(syncPrefixFlag.Name)
	}
	if ctx.IsSet(hintPrefixFlag.Name) {
		cfg.HintPrefix = ctx.String(hintPrefixFlag.Name)
	}
	if ctx.IsSet(precedingRecordNumFlag.Name) {
		cfg.PrecedingRecordNum = ctx.Int(precedingRecordNumFlag.Name)
	}
	if ctx.IsSet(recordFetchRetriesFlag.Name) {
		cfg.RecordFetchRetries = ctx.Int(recordFetchRetriesFlag.Name)
	}
	if ctx.IsSet(hintedFetchRetriesFlag.Name) {
		cfg.HintedFetchRetries = ctx.Int(hintedFetchRetriesFlag.Name)
	}
	if ctx.IsSet(seqNoBackupFreqFlag.Name) {
		cfg.SeqNoBackupFreq = ctx.Uint64(seqNoBackupFreqFlag.Name)
	}
	if ctx.IsSet(maxCountedReplicationFlag.Name) {
		cfg.MaxCountedReplication = ctx.Int(maxCountedReplicationFlag.Name)
	}
	if ctx.IsSet(maxSelfReRefCountFlag.Name) {
		cfg.MaxSelfReRefCount = ctx.Int(maxSelfReRefCountFlag.Name)
	}
	if ctx.IsSet(insertBackoffMinFlag.Name) {
		cfg.InsertBackoffMinMS = ctx.Int64(insertBackoffMinFlag.Name)
	}
	if ctx.IsSet(insertBackoffMaxFlag.Name) {
		cfg.InsertBackoffMaxMS = ctx.Int64(insertBackoffMaxFlag.Name)
	}
	if ctx.IsSet(selfInsertResetFreqFlag.Name) {
		cfg.SelfInsertResetFreq = ctx.Int(selfInsertResetFreqFlag.Name)
	}
	if ctx.IsSet(seenEventTTLFlag.Name) {
		cfg.SeenEventTTLMS = ctx.Int64(seenEventTTLFlag.Name)
	}
	if ctx.IsSet(startupDelayFlag.Name) {
		cfg.StartupDelayMS = ctx.Int64(startupDelayFlag.Name)
	}
	if ctx.IsSet(databaseTypeFlag.Name) {
		cfg.DatabaseType = ctx.String(databaseTypeFlag.Name)
	}
	if ctx.IsSet(databasePathFlag.Name) {
		cfg.DatabasePath = ctx.String(databasePathFlag.Name)
	}
	if ctx.IsSet(databaseCacheFlag.Name) {
		cfg.DatabaseCache = ctx.Int(databaseCacheFlag.Name)
	}
	if ctx.IsSet(databaseHandlesFlag.Name) {
		cfg.DatabaseHandles = ctx.Int(databaseHandlesFlag.Name)
	}
	if ctx.IsSet(psInterfacePrefixesFlag.Name) {
		cfg.PSInterfacePrefixes = ctx.StringSlice(psInterfacePrefixesFlag.Name)
	}
	if ctx.IsSet(eventFilterFlag.Name) {
		cfg.EventFilter = ctx.String(eventFilterFlag.Name)
	}
	if ctx.IsSet(contentTypeFlag.Name) {
		cfg.ContentType = uint32(ctx.Uint64(contentTypeFlag.Name))
	}
}
