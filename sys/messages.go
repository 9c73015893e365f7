package sys

// @src
const (
	// Configuration
	MsgConfigFailedToLoad = "Failed to load config: %v"
	MsgConfigMissingToken = "DISCORD_TOKEN is not set in .env file"
	MsgConfigInvalidValue = "invalid %s: %w"

	// Data layer
	MsgDatabaseInitSuccess    = "Database initialized successfully"
	MsgDatabaseTableError     = "Failed to create table: %w"
	MsgDatabasePragmaError    = "Failed to set pragma %s: %w"
	MsgDatabaseCloseError     = "Failed to close database: %v"
	MsgDatabasePrefixLoadFail = "Failed to load persisted prefix: %v"

	// Command Registry
	MsgLoaderGuildRegister      = "Registering commands to guild: %s"
	MsgLoaderCommandRegistered  = "Registered command: %s"
	MsgLoaderRegisteringGlobal  = "Registering commands globally..."
	MsgLoaderRegisterGlobalFail = "Failed to register global commands: %w"
	MsgLoaderInvalidGuildID     = "invalid GUILD_ID: %w"
	MsgLoaderPanicRecovered     = "Panic recovered in handler: %v"

	// Bot Lifecycle
	MsgBotStarting     = "Starting %s..."
	MsgBotReady        = "%s is online and ready! (ID: %s) (%dms)"
	MsgBotShutdown     = "Shutting down %s..."
	MsgBotRegisterFail = "Command registration failed: %v"
	MsgBotGatewayFail  = "Failed to open gateway: %w"
	MsgBotKillingOld   = "Killing running instance... (PID: %d)"
	MsgGenericError    = "%v"
)

// @voice
const (
	MsgVoiceDownloadComplete   = "Download complete: %s"
	MsgVoiceDownloadFailed     = "Error downloading song %s: %v"
	MsgVoicePlaying            = "Playing %s in channel %s"
	MsgVoiceFinished           = "Finished playing %s, cleaning up"
	MsgVoicePlayerError        = "Player error on %s: %v"
	MsgVoiceQueued             = "Queued %s at position %d"
	MsgVoiceAdvance            = "Advancing queue to %s"
	MsgVoiceIdleArmed          = "Queue empty, disconnecting in %v if still idle"
	MsgVoiceIdleDisconnect     = "Connection destroyed due to inactivity"
	MsgVoiceStaleTimer         = "Ignoring stale idle timer"
	MsgVoiceStaleLoad          = "Discarding stale load for %s"
	MsgVoiceExit               = "Connection destroyed from exit request"
	MsgVoiceSkip               = "Skipping %s"
	MsgVoiceDestroyFail        = "Failed to destroy voice connection: %v"
	MsgVoiceExternalDisconnect = "Bot disconnected by external event in guild %s"
	MsgVoiceTranscoderFailed   = "Transcoder failed for %s: %v"
	MsgVoiceSenderStalled      = "Voice sender idle for %v, dropping player"
	MsgVoiceResolveName        = "Failed to resolve title for %s: %v"
	MsgVoiceSearch             = "Searching for: %s"
	MsgVoiceSearchFallback     = "ytsearch found nothing for %s, trying YouTube Music"
)

// @cache
const (
	MsgCacheDeleted      = "Deleted cached file: %s"
	MsgCacheDeleteFail   = "Error deleting file %s: %v"
	MsgCacheCreateDir    = "Unable to create cache directory: %v"
	MsgCachePurged       = "Purged %d cached files"
	MsgCachePartialClean = "Removed partial download %s"
)

// @router
const (
	MsgRouterCommand      = "User %s (%s) ran %q"
	MsgRouterNoVoice      = "User %s is not in a voice channel"
	MsgRouterNoArgument   = "User %s tried to play a song without parameter"
	MsgRouterRateLimited  = "Rate limited %s"
	MsgRouterSendFail     = "Failed to send message to %s: %v"
	MsgRouterPrefixUpdate = "Prefix updated to %q"
	MsgRouterPrefixFail   = "Updating settings failed: %v"

	ErrRouterNoVoice       = "Join a voice channel first."
	ErrRouterNoArgument    = "Give me something to play."
	ErrRouterRateLimited   = "Slow down a little."
	ErrRouterPrefixSame    = "That prefix is already being used"
	ErrRouterPrefixFailed  = "Something went wrong and the prefix wasn't changed"
	ErrRouterPrefixMissing = "Tell me the new prefix."
	ErrRouterBadPosition   = "Position must be a number."
	ErrRouterSkipDisabled  = "This command is disabled right now."
	ErrRouterNothingFound  = "❌ Nothing found for %s"
)
