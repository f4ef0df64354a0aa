// Package device classifies user-agent strings into coarse device, browser,
// and OS labels for session records. Classification is a pure function of
// the user-agent; nothing here touches the network or storage.
package device

import "strings"

// Device type labels
const (
	TypeMobile  = "mobile"
	TypeTablet  = "tablet"
	TypeDesktop = "desktop"
	TypeUnknown = "unknown"
)

// Fingerprint is the parsed classification of one user-agent string.
type Fingerprint struct {
	DeviceType string
	Browser    string
	OS         string
	Raw        string
}

// rule pairs a predicate with the label it yields. Rules are evaluated in
// order; the first match wins, so precedence is explicit in the table.
type rule struct {
	matches func(ua string) bool
	label   string
}

func contains(token string) func(string) bool {
	return func(ua string) bool { return strings.Contains(ua, token) }
}

// deviceRules: tablets before phones, phones before generic OS tokens.
// Android user agents contain "linux" and desktop-class tokens, and Android
// tablets omit the "mobile" token, so ordering is what keeps them apart.
var deviceRules = []rule{
	{contains("ipad"), TypeTablet},
	{contains("tablet"), TypeTablet},
	{func(ua string) bool {
		return strings.Contains(ua, "android") && !strings.Contains(ua, "mobile")
	}, TypeTablet},
	{contains("iphone"), TypeMobile},
	{contains("ipod"), TypeMobile},
	{contains("windows phone"), TypeMobile},
	{contains("android"), TypeMobile},
	{contains("mobile"), TypeMobile},
}

// browserRules: derived browsers before the engine they embed. Edge, Opera,
// and Samsung Internet all advertise "chrome"; Chrome advertises "safari".
var browserRules = []rule{
	{contains("edg"), "Edge"},
	{contains("opr/"), "Opera"},
	{contains("opera"), "Opera"},
	{contains("samsungbrowser"), "Samsung Internet"},
	{contains("firefox"), "Firefox"},
	{contains("chrome"), "Chrome"},
	{contains("crios"), "Chrome"},
	{contains("safari"), "Safari"},
	{contains("msie"), "Internet Explorer"},
	{contains("trident"), "Internet Explorer"},
}

// osRules: "windows phone" before "windows", "android" before "linux".
var osRules = []rule{
	{contains("windows phone"), "Windows Phone"},
	{contains("windows"), "Windows"},
	{contains("iphone"), "iOS"},
	{contains("ipad"), "iOS"},
	{contains("ipod"), "iOS"},
	{contains("mac os x"), "macOS"},
	{contains("macintosh"), "macOS"},
	{contains("cros"), "ChromeOS"},
	{contains("android"), "Android"},
	{contains("linux"), "Linux"},
}

func classify(ua string, rules []rule, fallback string) string {
	for _, r := range rules {
		if r.matches(ua) {
			return r.label
		}
	}
	return fallback
}

// Parse classifies a raw user-agent string. An empty user agent yields
// unknown labels across the board.
func Parse(userAgent string) Fingerprint {
	raw := strings.TrimSpace(userAgent)
	if raw == "" {
		return Fingerprint{
			DeviceType: TypeUnknown,
			Browser:    "Unknown",
			OS:         "Unknown",
			Raw:        "",
		}
	}

	ua := strings.ToLower(raw)
	return Fingerprint{
		DeviceType: classify(ua, deviceRules, TypeDesktop),
		Browser:    classify(ua, browserRules, "Unknown"),
		OS:         classify(ua, osRules, "Unknown"),
		Raw:        raw,
	}
}

// Description renders a fingerprint as "{browser} on {os}", appending the
// device type only when it adds information beyond the default desktop case.
func Description(fp Fingerprint) string {
	browserKnown := fp.Browser != "" && fp.Browser != "Unknown"
	osKnown := fp.OS != "" && fp.OS != "Unknown"

	var desc string
	switch {
	case browserKnown && osKnown:
		desc = fp.Browser + " on " + fp.OS
	case browserKnown:
		desc = fp.Browser
	case osKnown:
		desc = fp.OS
	default:
		return "Unknown device"
	}

	if fp.DeviceType != TypeDesktop && fp.DeviceType != TypeUnknown {
		desc += " (" + fp.DeviceType + ")"
	}
	return desc
}

// Icon maps a device type to the icon name used by the frontend.
func Icon(deviceType string) string {
	switch deviceType {
	case TypeMobile:
		return "smartphone"
	case TypeTablet:
		return "tablet"
	case TypeDesktop:
		return "monitor"
	default:
		return "help-circle"
	}
}
