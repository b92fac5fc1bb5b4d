package ui

import (
	"html/template"
	"strings"
	"time"

	"github.com/loqalabs/loqa-recorder/internal/capture"
	"github.com/loqalabs/loqa-recorder/internal/decoding"
	"github.com/loqalabs/loqa-recorder/internal/recordings"
	"github.com/loqalabs/loqa-recorder/internal/render"
)

type pageView struct {
	Title          string
	State          string
	Controls       capture.Controls
	FormatLabel    string
	Options        decoding.Options
	Visibility     decoding.Visibility
	Methods        []string
	Languages      []string
	Entries        []entryView
	RefreshSeconds int
}

type entryView struct {
	ID       string
	Name     string
	FileName string
	Duration string
	Pending  bool
	Done     bool
	Elapsed  string
	Panel    template.HTML
}

func (h *Handler) buildPage() (pageView, error) {
	state := h.recorder.State()
	opts := h.Options()
	view := pageView{
		Title:      h.cfg.Title,
		State:      state.String(),
		Controls:   h.recorder.Controls(),
		Options:    opts,
		Visibility: decoding.VisibilityFor(opts.Method),
		Methods:    decoding.Methods,
		Languages:  h.cfg.Languages,
	}
	if state != capture.Idle {
		view.FormatLabel = h.recorder.FormatLabel()
	}

	for _, e := range h.library.List() {
		ev := entryView{
			ID:       e.Artifact.ID,
			Name:     e.Artifact.Name,
			FileName: e.Artifact.FileName(),
			Duration: e.Artifact.Info.Duration.Round(100 * time.Millisecond).String(),
			Pending:  e.Upload.Status == recordings.UploadPending,
			Done:     e.Upload.Status == recordings.UploadDone,
		}
		if ev.Done {
			panel, err := render.HTMLFragment(e.Upload.Panel, "/recordings/"+e.Artifact.ID)
			if err != nil {
				return pageView{}, err
			}
			ev.Panel = panel
			ev.Elapsed = e.Upload.Elapsed.Round(10 * time.Millisecond).String()
		}
		if ev.Pending {
			view.RefreshSeconds = max(h.cfg.RefreshSeconds, 1)
		}
		view.Entries = append(view.Entries, ev)
	}
	return view, nil
}

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
{{if .RefreshSeconds}}<meta http-equiv="refresh" content="{{.RefreshSeconds}}">{{end}}
<style>
body { font-family: sans-serif; max-width: 52rem; margin: 2rem auto; }
.controls form { display: inline; }
.hidden { display: none; }
.panel.error { color: #b00020; }
.loading { font-style: italic; }
form.toggle { display: inline; }
form.toggle button { border: none; background: none; font: inherit; cursor: pointer; padding: 0; }
li.recording { margin-bottom: 1.5rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>

<section class="controls" data-state="{{.State}}">
<form method="post" action="/record/start"><button id="recordButton"{{if not .Controls.RecordEnabled}} disabled{{end}}>Record</button></form>
<form method="post" action="/record/pause"><button id="pauseButton"{{if not .Controls.PauseEnabled}} disabled{{end}}>{{.Controls.PauseLabel}}</button></form>
<form method="post" action="/record/stop"><button id="stopButton"{{if not .Controls.StopEnabled}} disabled{{end}}>Stop</button></form>
<form method="post" action="/recordings" enctype="multipart/form-data">
<input type="file" name="audio" accept="audio/wav"{{if not .Controls.UploadEnabled}} disabled{{end}}>
<button{{if not .Controls.UploadEnabled}} disabled{{end}}>Upload file</button>
</form>
{{if .FormatLabel}}<p id="formats">{{.FormatLabel}}</p>{{end}}
</section>

<section class="decoding">
<form method="post" action="/decoding">
<label>Method
<select name="method">{{range .Methods}}<option value="{{.}}"{{if eq . $.Options.Method}} selected{{end}}>{{.}}</option>{{end}}</select>
</label>
<label>Language
<select name="language">{{range .Languages}}<option value="{{.}}"{{if eq . $.Options.Language}} selected{{end}}>{{upper .}}</option>{{end}}</select>
</label>
<label><input type="checkbox" name="use_gpu" value="1"{{if .Options.UseGPU}} checked{{end}}> Use GPU</label>
<div id="inference_options_beam" class="{{if not .Visibility.Beam}}hidden{{end}}">
<label>Beam width <input type="number" min="0" step="1" name="beam_width" value="{{.Options.BeamWidth}}"></label>
<label>Patience <input type="number" min="0" step="any" name="patience" value="{{.Options.Patience}}"></label>
</div>
<div id="inference_options_sampling" class="{{if not .Visibility.Sampling}}hidden{{end}}">
<label>Temperature <input type="number" min="0" step="any" name="temperature" value="{{.Options.Temperature}}"></label>
<label>Best of <input type="number" min="0" step="1" name="best_of" value="{{.Options.BestOf}}"></label>
</div>
<button>Apply</button>
</form>
</section>

<h2>Recordings</h2>
<ol id="recordingsList">
{{range .Entries}}<li class="recording" id="rec-{{.ID}}">
<audio controls src="/recordings/{{.ID}}/audio"></audio>
<span class="name">{{.Name}}</span> <span class="duration">{{.Duration}}</span>
<a href="/recordings/{{.ID}}/audio?download=1" download="{{.FileName}}">Save to disk</a>
<form method="post" action="/recordings/{{.ID}}/transcribe" style="display:inline"><button{{if .Pending}} disabled{{end}}>Transcribe</button></form>
{{if .Pending}}<p class="loading">Transcribing…</p>{{end}}
{{if .Done}}<div class="result" data-elapsed="{{.Elapsed}}">{{.Panel}}</div>{{end}}
</li>
{{end}}</ol>
</body>
</html>
`))
