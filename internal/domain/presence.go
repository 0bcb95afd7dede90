package domain

// Presence — как участник виден остальной комнате.
type Presence struct {
	UserID      string  `json:"userId"`
	DisplayName *string `json:"displayName,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
}
