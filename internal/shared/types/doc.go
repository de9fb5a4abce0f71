// Package types provides shared data structures for the launcher.
//
// Core Types:
//   - Phase, LaunchPhase: Top-level experience selected for a launch
//   - AppMode: Experience an install has committed to
//   - LaunchState: Everything persisted between process runs
//   - AttributionPayload: Conversion data supplied by the attribution SDK
//   - SessionConfig: Decoded reply of the session-config endpoint
//   - Cookie, CookieSnapshot: Browsing session cookies grouped by domain
//
// Example Usage:
//
//	st := types.LaunchState{
//	    HasLaunchedBefore: true,
//	    AppMode:           types.ModeRemoteContent,
//	    SavedAddress:      "https://x.example/s1",
//	}
//	if err := st.Validate(); err != nil {
//	    return err
//	}
package types
