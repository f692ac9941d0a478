package broker

import (
	"testing"

	"github.com/nowplaying/backend/internal/models"
)

func TestDetector(t *testing.T) {
	songA := models.TrackSnapshot{
		IsPlaying:     true,
		Title:         "Song A",
		Artist:        "Artist X",
		AlbumImageURL: "https://i.scdn.co/image/a",
		SongURL:       "https://open.spotify.com/track/a",
	}
	newArt := songA
	newArt.AlbumImageURL = "https://i.scdn.co/image/b"

	d := NewDetector()

	if !d.Observe(models.NotPlaying()) {
		t.Error("first observation should count as a change")
	}
	if d.Observe(models.NotPlaying()) {
		t.Error("identical snapshot should not count as a change")
	}
	if !d.Observe(songA) {
		t.Error("not playing -> playing should be a change")
	}
	if !d.Observe(newArt) {
		t.Error("a different album image alone should be a change")
	}
	if d.Observe(newArt) {
		t.Error("repeat of the last snapshot should not be a change")
	}
}

func TestDetectorComparesAgainstLastObservation(t *testing.T) {
	a := models.TrackSnapshot{IsPlaying: true, Title: "A"}
	b := models.TrackSnapshot{IsPlaying: true, Title: "B"}

	d := NewDetector()
	d.Commit(a)

	if !d.HasChanged(b) {
		t.Fatal("b should differ from a")
	}
	// HasChanged does not commit.
	if !d.HasChanged(b) {
		t.Error("HasChanged must not replace the retained snapshot")
	}

	d.Commit(b)
	if d.HasChanged(b) {
		t.Error("b was committed, should not be a change")
	}
	if !d.HasChanged(a) {
		t.Error("flapping back to a is a change from the latest observation")
	}
}
