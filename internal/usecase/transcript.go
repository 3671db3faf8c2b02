package usecase

// transcriptState holds the stable text accumulated so far and the latest
// provisional fragment. interim is cleared whenever a stable fragment lands.
type transcriptState struct {
	final   string
	interim string
}

func (t *transcriptState) reset() {
	t.final = ""
	t.interim = ""
}

func (t *transcriptState) appendStable(text string) {
	t.final += text
	t.interim = ""
}

func (t *transcriptState) replaceInterim(text string) {
	t.interim = text
}
