package workflow

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/thesyncim/confdrive/pkg/browser/browsertest"
	"github.com/thesyncim/confdrive/pkg/roomapi"
)

const (
	testBase  = "https://localhost"
	testTitle = "QuavStreams (dev)"
)

// fakeApp emulates the conferencing UI on a browsertest.Site. Media state
// lives in data attributes of div.rtc-controls so each tab keeps its own.
type fakeApp struct {
	site *browsertest.Site

	mu       sync.Mutex
	rooms    []*fakeRoom
	seq      int
	loggedIn map[*browsertest.Tab]string
	picks    []string
}

type fakeRoom struct {
	roomapi.Room
	password string
	owner    string
}

func newFakeApp() *fakeApp {
	a := &fakeApp{
		site:     browsertest.NewSite(),
		loggedIn: make(map[*browsertest.Tab]string),
	}
	a.site.Page(testBase+"/", page(`<app-root><div class="toolbar"><button ng-reflect-message="Menu">menu</button></div></app-root>
<div class="cc-window"><div class="cc-compliance"><a class="cc-btn">Got it!</a></div></div>`))
	a.site.Page(testBase+"/login", page(`<mat-card><form>
<input formcontrolname="email"><input formcontrolname="password" type="password">
<button type="submit">Login</button></form></mat-card>`))
	a.site.PageFunc(testBase+"/dashboard/rooms", a.dashboard)

	a.site.OnClick("app-root > div button", func(t *browsertest.Tab, _ *goquery.Selection) {
		t.AppendHTML("body", `<div class="cdk-overlay-pane"><a href="/login">Login</a></div>`)
	})
	a.site.OnClick(".cc-compliance > a", func(t *browsertest.Tab, _ *goquery.Selection) {
		t.Remove(".cc-window")
	})
	a.site.OnClick("mat-card button", a.login)
	a.site.OnClick(`button[mattooltip="Add a live stream or a conference room"]`, func(t *browsertest.Tab, _ *goquery.Selection) {
		t.AppendHTML("body", `<div class="cdk-overlay-pane"><button mattooltip="Add a live stream">stream</button>`+
			`<button mattooltip="Add a conference room">room</button></div>`)
	})
	a.site.OnClick(`button[mattooltip="Add a conference room"]`, func(t *browsertest.Tab, _ *goquery.Selection) {
		t.Remove("div.cdk-overlay-pane")
		t.AppendHTML("body", `<app-room-create><form><input formcontrolname="title">`+
			matSelect(`formcontrolname="view_policy"`, "unlisted", "public", "unlisted", "private", "password")+
			`<button type="submit">Create</button></form></app-room-create>`)
	})
	a.site.OnClick("mat-select", openSelect)
	a.site.OnClick("mat-option, span.mat-option-text", a.pickOption)
	a.site.OnClick(`app-room-create button[type="submit"]`, a.createRoom)
	a.site.OnClick("div.stream-edit-buttons > div:nth-child(1) > button", a.editRoom)
	a.site.OnClick(`app-room-edit button[type="submit"]`, a.saveRoom)
	a.site.OnClick("div.form-row > button", a.enterPassword)
	a.site.OnClick(".display-name-settings button", func(t *browsertest.Tab, _ *goquery.Selection) {
		t.Remove(".display-name-settings")
	})

	// Room controls.
	a.site.OnClick(`button[title="Publish audio & video [v]"]`, a.publish)
	a.site.OnClick(`button[title="Publish audio [a]"]`, func(t *browsertest.Tab, _ *goquery.Selection) {
		setTrack(t, "audio", "play")
	})
	a.site.OnClick(`div.rtc-controls > button[title="Publish screen share [s]"]`, func(t *browsertest.Tab, _ *goquery.Selection) {
		setTrack(t, "screen", "play")
	})
	a.site.OnClick(`button[title="Stop all audio and video [q]"]`, func(t *browsertest.Tab, _ *goquery.Selection) {
		for _, track := range []string{"video", "audio", "screen"} {
			controls(t).SetAttr("data-"+track, "stop")
		}
		renderControls(t)
	})
	a.site.OnClick(`app-base-menu[ng-reflect-icon="videocam"] > button`, openVideoMenu)
	a.site.OnClick(`app-base-menu[ng-reflect-icon="mic"] > button`, openAudioMenu)
	a.site.OnClick(`div[role="menuitem"] > button`, menuAction)
	a.site.OnClick(`div[role="menuitem"] > span`, func(t *browsertest.Tab, _ *goquery.Selection) {
		t.Remove("div.cdk-overlay-pane")
	})
	a.site.OnClick("mat-slide-toggle", func(_ *browsertest.Tab, el *goquery.Selection) {
		if v, _ := el.Attr("ng-reflect-checked"); v == "true" {
			el.SetAttr("ng-reflect-checked", "false")
		} else {
			el.SetAttr("ng-reflect-checked", "true")
		}
	})
	a.site.OnClick(`div.mat-tooltip-trigger > button[type="submit"]`, submitDialog)
	a.site.OnClick("#moreOptionsButton > button", openMoreOptions)
	a.site.OnClick(`div[role="menu"] > button[title$="ock room"]`, toggleLock)
	return a
}

func page(body string) string {
	return "<html><head><title>" + testTitle + "</title></head><body>" + body + "</body></html>"
}

// matSelect renders a select offering values, showing current.
func matSelect(attrs, current string, values ...string) string {
	return fmt.Sprintf(`<mat-select %s ng-reflect-value="%s" data-options="%s"><div><div><span><span>%s</span></span></div></div></mat-select>`,
		attrs, current, strings.Join(values, ","), html.EscapeString(current))
}

func openSelect(t *browsertest.Tab, el *goquery.Selection) {
	t.Remove("div.cdk-overlay-pane.select-panel")
	t.Doc().Find("mat-select[data-open]").RemoveAttr("data-open")
	el.SetAttr("data-open", "true")
	opts, _ := el.Attr("data-options")
	var b strings.Builder
	b.WriteString(`<div class="cdk-overlay-pane select-panel">`)
	for _, v := range strings.Split(opts, ",") {
		fmt.Fprintf(&b, `<mat-option ng-reflect-value="%s"><span class="mat-option-text">%s</span></mat-option>`,
			html.EscapeString(v), html.EscapeString(v))
	}
	b.WriteString(`</div>`)
	t.AppendHTML("body", b.String())
}

func (a *fakeApp) pickOption(t *browsertest.Tab, el *goquery.Selection) {
	if !el.Is("mat-option") {
		el = el.Closest("mat-option")
	}
	v, _ := el.Attr("ng-reflect-value")
	a.mu.Lock()
	a.picks = append(a.picks, v)
	a.mu.Unlock()
	sel := t.Doc().Find("mat-select[data-open]")
	sel.RemoveAttr("data-open")
	sel.SetAttr("ng-reflect-value", v)
	sel.Find("div > div > span > span").SetText(v)
	t.Remove("div.cdk-overlay-pane")

	if sel.Is(`app-room-create mat-select`) && v == string(roomapi.Password) {
		sel.AfterHtml(`<input formcontrolname="password" type="password">`)
	}
}

func inputValue(t *browsertest.Tab, selector string) string {
	v, _ := t.Doc().Find(selector).First().Attr("value")
	return v
}

func selectValue(t *browsertest.Tab, selector string) string {
	v, _ := t.Doc().Find(selector).First().Attr("ng-reflect-value")
	return v
}

func (a *fakeApp) login(t *browsertest.Tab, _ *goquery.Selection) {
	a.mu.Lock()
	a.loggedIn[t] = inputValue(t, `input[formcontrolname="email"]`)
	a.mu.Unlock()
	_ = t.Navigate(testBase + "/")
}

func (a *fakeApp) user(t *browsertest.Tab) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loggedIn[t]
}

// addRoom stores a room and serves its page. It is also used by tests to
// seed the dashboard.
func (a *fakeApp) addRoom(title string, policy roomapi.ViewPolicy, password, owner string) *fakeRoom {
	a.mu.Lock()
	a.seq++
	r := &fakeRoom{Room: roomapi.NewRoom(title), password: password, owner: owner}
	r.ID = fmt.Sprintf("r%03d", a.seq)
	r.ViewPolicy = policy
	r.Auth = policy == roomapi.Password
	a.rooms = append(a.rooms, r)
	a.mu.Unlock()

	a.site.PageFunc(testBase+"/room/"+r.ID, func(t *browsertest.Tab) string { return a.roomPage(t, r) })
	return r
}

func (a *fakeApp) room(id string) *fakeRoom {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.rooms {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (a *fakeApp) createRoom(t *browsertest.Tab, _ *goquery.Selection) {
	title := inputValue(t, `app-room-create input[formcontrolname="title"]`)
	policy := roomapi.ViewPolicy(selectValue(t, "app-room-create mat-select"))
	password := inputValue(t, `app-room-create input[formcontrolname="password"]`)
	a.addRoom(title, policy, password, a.user(t))
	_ = t.Navigate(testBase + "/dashboard/rooms")
}

func (a *fakeApp) dashboard(*browsertest.Tab) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var rows strings.Builder
	for _, r := range a.rooms {
		fmt.Fprintf(&rows, `<tr><td>conference</td><td><div class="title-cell"><a class="title" href="/room/%s">%s</a></div></td>`+
			`<td><div class="stream-edit-buttons"><div><button data-room="%s">edit</button></div><div><button>delete</button></div></div></td></tr>`,
			r.ID, html.EscapeString(r.Title), r.ID)
	}
	return page(`<mat-toolbar-row><button mattooltip="Add a live stream or a conference room">add</button></mat-toolbar-row>
<table><tbody>` + rows.String() + `</tbody></table>`)
}

func (a *fakeApp) editRoom(t *browsertest.Tab, el *goquery.Selection) {
	id, _ := el.Attr("data-room")
	r := a.room(id)
	if r == nil {
		return
	}
	t.AppendHTML("body", `<app-room-edit data-room="`+id+`"><app-base-edit-dialog>`+
		`<mat-tab-header><div class="mat-tab-labels"><div>General</div><div>Room options</div></div></mat-tab-header>`+
		matSelect(`ng-reflect-name="view_policy"`, string(r.ViewPolicy), "public", "unlisted", "private", "password")+
		matSelect(`formcontrolname="rtcPublishPolicy"`, string(r.PublishPolicy), "guest", "login", "owner")+
		matSelect(`formcontrolname="rtcLayout"`, string(r.Layout), "auto", "full")+
		`<input formcontrolname="rtcMaxVideoConsumers" value="`+strconv.Itoa(r.MaxVideoConsumers)+`">`+
		matSelect(`formcontrolname="rtcAdminViewOnly"`, strconv.FormatBool(r.AdminViewOnly), "true", "false")+
		matSelect(`formcontrolname="rtcShowMediaSettings"`, strconv.FormatBool(r.ShowMediaSettings), "true", "false")+
		matSelect(`formcontrolname="rtcLocked"`, strconv.FormatBool(r.Locked), "true", "false")+
		`<button type="submit">Save</button></app-base-edit-dialog></app-room-edit>`)
}

func (a *fakeApp) saveRoom(t *browsertest.Tab, _ *goquery.Selection) {
	id, _ := t.Doc().Find("app-room-edit").Attr("data-room")
	r := a.room(id)
	if r == nil {
		return
	}
	a.mu.Lock()
	r.ViewPolicy = roomapi.ViewPolicy(selectValue(t, `mat-select[ng-reflect-name="view_policy"]`))
	r.PublishPolicy = roomapi.PublishPolicy(selectValue(t, `mat-select[formcontrolname="rtcPublishPolicy"]`))
	r.Layout = roomapi.Layout(selectValue(t, `mat-select[formcontrolname="rtcLayout"]`))
	r.MaxVideoConsumers, _ = strconv.Atoi(inputValue(t, `input[formcontrolname="rtcMaxVideoConsumers"]`))
	r.AdminViewOnly = selectValue(t, `mat-select[formcontrolname="rtcAdminViewOnly"]`) == "true"
	r.ShowMediaSettings = selectValue(t, `mat-select[formcontrolname="rtcShowMediaSettings"]`) == "true"
	r.Locked = selectValue(t, `mat-select[formcontrolname="rtcLocked"]`) == "true"
	a.mu.Unlock()
	t.Remove("app-room-edit")
}

func (a *fakeApp) roomPage(t *browsertest.Tab, r *fakeRoom) string {
	user := a.user(t)
	a.mu.Lock()
	defer a.mu.Unlock()
	owner := user != "" && user == r.owner

	if r.password != "" && !owner {
		return page(`<div class="room-auth" data-room="` + r.ID + `"><div class="form-row">` +
			`<input type="password"><button>Enter</button></div></div>`)
	}
	return page(a.roomBody(r, user, owner))
}

func (a *fakeApp) roomBody(r *fakeRoom, user string, owner bool) string {
	var b strings.Builder
	if user == "" {
		b.WriteString(`<div class="display-name-settings"><input id="displayNameInput"><button>Join</button></div>`)
	}
	if r.Locked && !owner {
		b.WriteString(`<div class="cdk-overlay-pane"><simple-snack-bar><span>Room locked</span></simple-snack-bar></div>`)
		return b.String()
	}
	canPublish := true
	switch r.PublishPolicy {
	case roomapi.Login:
		canPublish = user != ""
	case roomapi.Owner:
		canPublish = owner
	}
	lockClass, lockText := "rtc-locked-inactive", ""
	if r.Locked {
		lockClass, lockText = "rtc-locked-active", "Room locked"
	}
	fmt.Fprintf(&b, `<mat-sidenav-content>`+
		`<div class="rtc-controls" data-room="%s" data-can-publish="%t" data-settings="%t" data-video="stop" data-audio="stop" data-screen="stop">%s</div>`+
		`<div id="moreOptionsButton"><button>more</button></div>`+
		`<div class="rtc-lock" ng-reflect-ng-class="%s"><span>%s</span></div>`+
		`<app-base-grid id="remote-grid"><div class="grid-container"></div></app-base-grid>`+
		`<app-local-participant><app-base-grid><div class="grid-container"></div></app-base-grid></app-local-participant>`+
		`</mat-sidenav-content>`,
		r.ID, canPublish, r.ShowMediaSettings, idleBar(canPublish), lockClass, lockText)
	return b.String()
}

func (a *fakeApp) enterPassword(t *browsertest.Tab, _ *goquery.Selection) {
	id, _ := t.Doc().Find("div.room-auth").Attr("data-room")
	r := a.room(id)
	if r == nil || inputValue(t, "div.form-row > input") != r.password {
		return
	}
	user := a.user(t)
	a.mu.Lock()
	body := a.roomBody(r, user, false)
	a.mu.Unlock()
	t.SetHTML("body", body)
}

func idleBar(canPublish bool) string {
	if !canPublish {
		return `<button title="Toggle fullscreen">fullscreen</button><button title="Toggle chat [c]">chat</button>`
	}
	return `<button title="Publish audio &amp; video [v]">av</button><button title="Publish audio [a]">audio</button>` +
		`<button title="Publish screen share [s]">screen</button><button title="Toggle chat [c]">chat</button>`
}

const publishingBar = `<app-base-menu ng-reflect-icon="videocam"><button title="Video">videocam</button></app-base-menu>` +
	`<button title="Publish screen share [s]">screen</button>` +
	`<app-base-menu ng-reflect-icon="mic"><button title="Audio">mic</button></app-base-menu>` +
	`<button title="Stop all audio and video [q]">stop</button><button title="Toggle chat [c]">chat</button>`

func controls(t *browsertest.Tab) *goquery.Selection {
	return t.Doc().Find("div.rtc-controls")
}

func trackState(t *browsertest.Tab, track string) string {
	v, _ := controls(t).Attr("data-" + track)
	return v
}

func setTrack(t *browsertest.Tab, track, state string) {
	controls(t).SetAttr("data-"+track, state)
	renderControls(t)
}

// renderControls redraws the control bar and the local grid from the
// track states.
func renderControls(t *browsertest.Tab) {
	ctl := controls(t)
	video, audio, screen := trackState(t, "video"), trackState(t, "audio"), trackState(t, "screen")
	if video == "stop" && audio == "stop" && screen == "stop" {
		can, _ := ctl.Attr("data-can-publish")
		ctl.SetHtml(idleBar(can == "true"))
	} else {
		ctl.SetHtml(publishingBar)
	}
	var local strings.Builder
	if video != "stop" {
		local.WriteString(`<video class="camera"></video>`)
	}
	if screen != "stop" {
		local.WriteString(`<video class="screen"></video>`)
	}
	t.Doc().Find("app-local-participant div.grid-container").SetHtml(local.String())
}

func (a *fakeApp) publish(t *browsertest.Tab, _ *goquery.Selection) {
	if v, _ := controls(t).Attr("data-settings"); v == "true" {
		t.AppendHTML("body", mediaDialog(dialogPublish, true, true, true))
		return
	}
	controls(t).SetAttr("data-video", "play")
	setTrack(t, "audio", "play")
}

func menuItem(track, label, state string) string {
	toggle := "Pause"
	if state == "pause" {
		toggle = "Resume"
	}
	return fmt.Sprintf(`<div role="menuitem"><span class="device-name">%s</span>`+
		`<button data-track="%s" title="%s">%s</button><button data-track="%s" title="Settings">settings</button>`+
		`<button data-track="%s" title="Stop">stop</button></div>`,
		label, track, toggle, strings.ToLower(toggle), track, track)
}

func openVideoMenu(t *browsertest.Tab, _ *goquery.Selection) {
	var items strings.Builder
	if s := trackState(t, "video"); s != "stop" {
		items.WriteString(menuItem("video", "Camera", s))
	}
	if s := trackState(t, "screen"); s != "stop" {
		items.WriteString(menuItem("screen", "Screen", s))
	}
	t.AppendHTML("body", `<div class="cdk-overlay-pane"><div role="menu">`+items.String()+`</div></div>`)
}

func openAudioMenu(t *browsertest.Tab, _ *goquery.Selection) {
	item := ""
	if s := trackState(t, "audio"); s != "stop" {
		item = menuItem("audio", "Microphone", s)
	}
	t.AppendHTML("body", `<div class="cdk-overlay-pane"><div role="menu">`+item+`</div></div>`)
}

func menuAction(t *browsertest.Tab, el *goquery.Selection) {
	track, _ := el.Attr("data-track")
	title, _ := el.Attr("title")
	switch title {
	case "Pause":
		controls(t).SetAttr("data-"+track, "pause")
		el.SetAttr("title", "Resume")
	case "Resume":
		controls(t).SetAttr("data-"+track, "play")
		el.SetAttr("title", "Pause")
	case "Stop":
		t.Remove("div.cdk-overlay-pane")
		setTrack(t, track, "stop")
	case "Settings":
		t.Remove("div.cdk-overlay-pane")
		switch track {
		case "video":
			t.AppendHTML("body", mediaDialog(dialogVideo, true, false, false))
		case "audio":
			t.AppendHTML("body", mediaDialog(dialogAudio, false, true, trackState(t, "audio") == "play"))
		case "screen":
			t.AppendHTML("body", screenDialogHTML())
		}
	}
}

func mediaDialog(title string, video, audio, audioOn bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<mat-dialog-container><app-base-edit-dialog ng-reflect-dialog-title="%s"><div class="mat-dialog-content">`, title)
	if video {
		b.WriteString(`<div class="ng-star-inserted"><div class="section-title">Video</div><div class="section-body">` +
			`<div class="preview"><video></video></div><div class="options">` +
			`<mat-form-field>` + matSelect(`class="device"`, "fake_video_0", "fake_video_0", "/tmp/video.y4m") + `</mat-form-field>` +
			`<mat-form-field>` + matSelect(`class="quality"`, "540", "360", "540", "720") + `</mat-form-field>` +
			`</div></div></div>`)
	}
	if audio {
		fmt.Fprintf(&b, `<div class="ng-star-inserted"><div class="section-title">Audio</div><div class="section-body">`+
			`<mat-form-field>%s</mat-form-field><button title="Update devices">refresh</button>`+
			`<mat-slide-toggle ng-reflect-checked="%t"></mat-slide-toggle></div></div>`,
			matSelect(`class="device"`, "fake_audio_0", "fake_audio_0", "/tmp/audio.wav"), audioOn)
	}
	b.WriteString(`</div><div class="mat-dialog-actions"><div class="mat-tooltip-trigger"><button type="submit">Save</button></div></div>` +
		`</app-base-edit-dialog></mat-dialog-container>`)
	return b.String()
}

func screenDialogHTML() string {
	return `<mat-dialog-container><app-base-edit-dialog ng-reflect-dialog-title="` + dialogScreen + `"><div class="mat-dialog-content">` +
		`<div class="ng-star-inserted"><div class="section-title">Video</div><div class="section-body">` +
		`<mat-form-field>` + matSelect(`class="quality"`, "720", "360", "540", "720", "1080") + `</mat-form-field>` +
		`</div></div></div><div class="mat-dialog-actions"><div class="mat-tooltip-trigger"><button type="submit">Save</button></div></div>` +
		`</app-base-edit-dialog></mat-dialog-container>`
}

func submitDialog(t *browsertest.Tab, _ *goquery.Selection) {
	title, _ := t.Doc().Find("app-base-edit-dialog[ng-reflect-dialog-title]").Attr("ng-reflect-dialog-title")
	audio := "play"
	if v, ok := t.Doc().Find("mat-dialog-container mat-slide-toggle").Attr("ng-reflect-checked"); ok && v == "false" {
		audio = "pause"
	}
	t.Remove("mat-dialog-container")
	ctl := controls(t)
	switch title {
	case dialogPublish:
		ctl.SetAttr("data-video", "play")
		ctl.SetAttr("data-audio", audio)
	case dialogVideo:
		ctl.SetAttr("data-video", "play")
	case dialogAudio:
		ctl.SetAttr("data-audio", audio)
	case dialogScreen:
		ctl.SetAttr("data-screen", "play")
	}
	renderControls(t)
}

func openMoreOptions(t *browsertest.Tab, _ *goquery.Selection) {
	lock := "Lock room"
	if c, _ := t.Doc().Find("div.rtc-lock").Attr("ng-reflect-ng-class"); c == "rtc-locked-active" {
		lock = "Unlock room"
	}
	t.AppendHTML("body", `<div class="cdk-overlay-pane"><div role="menu">`+
		`<button title="`+lock+`">lock</button><button title="Room settings">settings</button>`+
		`<button title="Share room">share</button><button title="Enable video composition">compose</button>`+
		`<button title="Publish stream">stream</button><button title="Leave room">leave</button></div></div>`)
}

func toggleLock(t *browsertest.Tab, el *goquery.Selection) {
	title, _ := el.Attr("title")
	t.Remove("div.cdk-overlay-pane")
	banner := t.Doc().Find("div.rtc-lock")
	if title == "Lock room" {
		banner.SetAttr("ng-reflect-ng-class", "rtc-locked-active")
		banner.Find("span").SetText("Room locked")
	} else {
		banner.SetAttr("ng-reflect-ng-class", "rtc-locked-inactive")
		banner.Find("span").SetText("")
	}
}

// addRemote renders a remote participant tile in the active tab.
func addRemote(t *browsertest.Tab, hidden bool) {
	t.Doc().Find("#remote-grid > div.grid-container").AppendHtml(fmt.Sprintf(
		`<div class="rtc-item ng-star-inserted" data-hidden="%t"><app-remote-participant><video></video></app-remote-participant></div>`, hidden))
}
