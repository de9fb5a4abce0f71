package types

// OrganicStatus is the af_status value the attribution SDK reports for
// installs with no tracked acquisition channel.
const OrganicStatus = "Organic"

// AttributionPayload is the conversion data delivered once per install.
// The launcher only reads it and merges it into outbound requests.
type AttributionPayload map[string]interface{}

// IsOrganic reports whether the payload flags an organic install
func (p AttributionPayload) IsOrganic() bool {
	status, _ := p["af_status"].(string)
	return status == OrganicStatus
}

// Clone returns a shallow copy of the payload.
func (p AttributionPayload) Clone() AttributionPayload {
	out := make(AttributionPayload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns a copy of p overlaid with extra. Keys in extra win.
func (p AttributionPayload) Merge(extra map[string]interface{}) AttributionPayload {
	out := p.Clone()
	for k, v := range extra {
		out[k] = v
	}
	return out
}
