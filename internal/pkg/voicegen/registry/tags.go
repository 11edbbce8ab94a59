package registry

// barkTags are the inline markers offered for tag-aware models. They are
// inserted into the text as-is and interpreted by the backend.
var barkTags = []string{
	"[laughter]",
	"[laughs]",
	"[sighs]",
	"[music]",
	"[gasps]",
	"[clears throat]",
	"—",
	"♪",
	"[MAN]",
	"[WOMAN]",
}

func Tags() []string {
	out := make([]string, len(barkTags))
	copy(out, barkTags)
	return out
}
