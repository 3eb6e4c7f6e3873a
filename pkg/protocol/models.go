package protocol

// --- Request params ---

// LaunchRequest asks the device to act as if a token had been scanned.
type LaunchRequest struct {
	UID  string `json:"uid,omitempty"`
	Text string `json:"text"`
}

// WriteRequest asks a connected reader to write text to the next token.
type WriteRequest struct {
	Text string `json:"text"`
}

// SearchParams filters a media search.
type SearchParams struct {
	Query   string   `json:"query"`
	Systems []string `json:"systems"`
}

// UpdateSettingsRequest carries only the settings being changed.
type UpdateSettingsRequest struct {
	ConnectionString  *string  `json:"connectionString,omitempty"`
	AllowCommands     *bool    `json:"allowCommands,omitempty"`
	DisableSounds     *bool    `json:"disableSounds,omitempty"`
	ProbeDevice       *bool    `json:"probeDevice,omitempty"`
	ExitGame          *bool    `json:"exitGame,omitempty"`
	ExitGameBlocklist []string `json:"exitGameBlocklist,omitempty"`
	Debug             *bool    `json:"debug,omitempty"`
}

// MappingType selects which part of a token a mapping matches against.
type MappingType string

const (
	MappingTypeUID  MappingType = "uid"
	MappingTypeText MappingType = "text"
	MappingTypeData MappingType = "data"
)

// Valid reports whether t is a mapping type the device understands.
func (t MappingType) Valid() bool {
	switch t {
	case MappingTypeUID, MappingTypeText, MappingTypeData:
		return true
	}
	return false
}

// AddMappingRequest creates a new mapping.
type AddMappingRequest struct {
	Label    string      `json:"label"`
	Enabled  bool        `json:"enabled"`
	Type     MappingType `json:"type"`
	Match    string      `json:"match"`
	Pattern  string      `json:"pattern"`
	Override string      `json:"override"`
}

// UpdateMappingRequest patches an existing mapping.
type UpdateMappingRequest struct {
	ID       string       `json:"id"`
	Label    *string      `json:"label,omitempty"`
	Enabled  *bool        `json:"enabled,omitempty"`
	Type     *MappingType `json:"type,omitempty"`
	Match    *string      `json:"match,omitempty"`
	Pattern  *string      `json:"pattern,omitempty"`
	Override *string      `json:"override,omitempty"`
}

// DeleteMappingRequest removes a mapping by id.
type DeleteMappingRequest struct {
	ID string `json:"id"`
}

// --- Results ---

// VersionResponse identifies the device software.
type VersionResponse struct {
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

// System is a launchable platform known to the device.
type System struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// SystemsResponse lists every indexed system.
type SystemsResponse struct {
	Systems []System `json:"systems"`
}

// SearchResult is one media match.
type SearchResult struct {
	System System `json:"system"`
	Name   string `json:"name"`
	Path   string `json:"path"`
}

// SearchResultsResponse is the result of media.search.
type SearchResultsResponse struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}

// Mapping is a stored token-to-launch rewrite rule.
type Mapping struct {
	ID       string      `json:"id"`
	Added    string      `json:"added"`
	Label    string      `json:"label"`
	Enabled  bool        `json:"enabled"`
	Type     MappingType `json:"type"`
	Match    string      `json:"match"`
	Pattern  string      `json:"pattern"`
	Override string      `json:"override"`
}

// MappingsResponse lists all mappings.
type MappingsResponse struct {
	Mappings []Mapping `json:"mappings"`
}

// HistoryEntry is one scan from the device's history.
type HistoryEntry struct {
	Time    string `json:"time"`
	UID     string `json:"uid"`
	Text    string `json:"text"`
	Success bool   `json:"success"`
}

// HistoryResponse lists recent scans.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// SettingsResponse is the device's current configuration.
type SettingsResponse struct {
	ConnectionString  string   `json:"connectionString"`
	AllowCommands     bool     `json:"allowCommands"`
	DisableSounds     bool     `json:"disableSounds"`
	ProbeDevice       bool     `json:"probeDevice"`
	ExitGame          bool     `json:"exitGame"`
	ExitGameBlocklist []string `json:"exitGameBlocklist"`
	Debug             bool     `json:"debug"`
}

// StatusResponse is the result of the deprecated status method.
type StatusResponse struct {
	GamesIndex IndexStatus `json:"gamesIndex"`
}

// --- Notification payloads ---

// Token describes the most recently scanned token.
type Token struct {
	Type     string `json:"type"`
	UID      string `json:"uid"`
	Text     string `json:"text"`
	ScanTime string `json:"scanTime"`
}

// Playing describes the media currently running on the device. The zero
// value means nothing is playing.
type Playing struct {
	SystemID   string `json:"systemId"`
	SystemName string `json:"systemName"`
	MediaName  string `json:"mediaName"`
	MediaPath  string `json:"mediaPath"`
}

// IndexStatus reports media database indexing progress.
type IndexStatus struct {
	Exists      bool   `json:"exists"`
	Indexing    bool   `json:"indexing"`
	TotalSteps  int    `json:"totalSteps"`
	CurrentStep int    `json:"currentStep"`
	CurrentDesc string `json:"currentDesc"`
	TotalFiles  int    `json:"totalFiles"`
}
