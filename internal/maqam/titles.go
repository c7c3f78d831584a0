package maqam

// adjectives gives each maqam a pool of descriptors for take names.
var adjectives = map[string][]string{
	"rast":     {"balanced", "open", "morning", "steady", "clear"},
	"hijaz":    {"desert", "veiled", "distant", "burning", "ancient"},
	"saba":     {"sorrowful", "dusk", "fading", "tender", "low"},
	"nahawand": {"longing", "amber", "rain", "quiet", "yearning"},
	"bayati":   {"devotional", "earthen", "lantern", "humble", "night"},
}

// Title builds a deterministic human-readable name for a take from the
// scale id and an arbitrary key (session id, seed string).
func Title(scaleID, key string) string {
	if scaleID == "" || key == "" {
		return ""
	}
	id := normalizeID(scaleID)
	adjs := adjectives[id]
	if len(adjs) == 0 {
		return id + " session"
	}

	var h int
	for i := 0; i < len(key) && i < 8; i++ {
		h = h*31 + int(key[i])
	}
	if h < 0 {
		h = -h
	}
	return adjs[h%len(adjs)] + " " + id
}
