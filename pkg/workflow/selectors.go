package workflow

// CSS selectors and titles of the conferencing UI. They mirror the
// application's Angular Material markup; the fixture in
// cmd/conference-fixture renders the same structure.
const (
	selBanner = ".cc-compliance > a"

	// Login.
	selMenuButton  = "app-root > div button"
	selLoginLink   = `a[href="/login"]`
	selEmail       = `input[formcontrolname="email"]`
	selPassword    = `input[formcontrolname="password"]`
	selLoginSubmit = "mat-card:nth-child(1) button"

	// Dashboard.
	selRoomRows     = "tbody > tr"
	selRowTitle     = "a.title"
	selRowLink      = "td:nth-child(2) > div.title-cell > a"
	selRowEdit      = "div.stream-edit-buttons > div:nth-child(1) > button"
	selAddMenu      = `mat-toolbar-row button[mattooltip="Add a live stream or a conference room"]`
	selAddRoom      = `div.cdk-overlay-pane button[mattooltip="Add a conference room"]`
	selCreateTitle  = "app-room-create input"
	selCreatePolicy = "app-room-create mat-select"
	selCreatePass   = `app-room-create input[formcontrolname="password"]`
	selCreateSubmit = `app-room-create button[type="submit"]`

	// Room edit dialog.
	selEditViewPolicy    = `mat-select[ng-reflect-name="view_policy"]`
	selEditOptionsTab    = "app-base-edit-dialog mat-tab-header div.mat-tab-labels > div:nth-child(2)"
	selEditPublishPolicy = `mat-select[formcontrolname="rtcPublishPolicy"]`
	selEditLayout        = `mat-select[formcontrolname="rtcLayout"]`
	selEditMaxConsumers  = `input[formcontrolname="rtcMaxVideoConsumers"]`
	selEditAdminViewOnly = `mat-select[formcontrolname="rtcAdminViewOnly"]`
	selEditShowSettings  = `mat-select[formcontrolname="rtcShowMediaSettings"]`
	selEditLocked        = `mat-select[formcontrolname="rtcLocked"]`
	selEditSubmit        = `app-room-edit button[type="submit"]`
	selOptionTrue        = `mat-option[ng-reflect-value="true"]`

	// Room entry.
	selRoomPassword       = "div.form-row > input"
	selRoomPasswordSubmit = "div.form-row > button"
	selDisplayName        = "#displayNameInput"
	selDisplayNameSubmit  = ".display-name-settings button"
	selSnackBar           = "div.cdk-overlay-pane simple-snack-bar > span"

	// Media settings dialog.
	selDialog          = "mat-dialog-container"
	selDialogTitle     = "app-base-edit-dialog"
	selDialogFirst     = "div.mat-dialog-content > div:nth-child(1)"
	selDialogSecond    = "div.mat-dialog-content > div:nth-child(2)"
	selDialogOnly      = "div.mat-dialog-content > div.ng-star-inserted"
	selSectionTitle    = "div.section-title"
	selSectionBody     = "div:nth-child(2)"
	selVideoPreview    = "div:nth-child(1) > video"
	selVideoFields     = "div:nth-child(2) > mat-form-field"
	selAudioField      = "div:nth-child(2) > mat-form-field"
	selAudioUpdate     = "div:nth-child(2) > button"
	selAudioToggle     = "div:nth-child(2) > mat-slide-toggle"
	selSelect          = "mat-select"
	selSelectValue     = "div > div > span > span"
	selOverlayOptions  = "div.cdk-overlay-pane mat-option"
	selOverlayDevices  = "div.cdk-overlay-pane span.mat-option-text"
	selDialogSubmit    = `div.mat-tooltip-trigger > button[type="submit"]`
	attrDialogTitle    = "ng-reflect-dialog-title"
	attrToggleChecked  = "ng-reflect-checked"
	attrMenuMessage    = "ng-reflect-message"
	dialogPublish      = "Publish video and audio"
	dialogVideo        = "Video settings"
	dialogAudio        = "Audio settings"
	dialogScreen       = "Screenshare settings"
	titleUpdateDevices = "Update devices"

	// Control bar and its menus.
	selControlBar     = "mat-sidenav-content > div.rtc-controls > button"
	selVideoMenu      = `div.rtc-controls > app-base-menu[ng-reflect-icon="videocam"] > button`
	selAudioMenu      = "div.rtc-controls > app-base-menu:nth-child(3) > button"
	selMenuItems      = `div.cdk-overlay-pane div[role="menuitem"]`
	selMenuButtons    = `div.cdk-overlay-pane > div[role="menu"] button`
	selMenuItemLabel  = "span"
	selAudioMenuLabel = "span.device-name"
	selMoreOptions    = "#moreOptionsButton > button"
	selLockedBanner   = `div[ng-reflect-ng-class="rtc-locked-active"] > span`

	titlePublishAV     = "Publish audio & video [v]"
	titlePublishAudio  = "Publish audio [a]"
	titlePublishScreen = "Publish screen share [s]"
	titleStopAll       = "Stop all audio and video [q]"
	titleFullscreen    = "Toggle fullscreen"
	titlePause         = "Pause"
	titleResume        = "Resume"
	titleSettings      = "Settings"
	titleStop          = "Stop"
	titleLockRoom      = "Lock room"
	titleUnlockRoom    = "Unlock room"
	textRoomLocked     = "Room locked"

	// Participant grids.
	selRemoteGrid  = "app-base-grid > div.grid-container"
	selLocalGrid   = "app-local-participant app-base-grid > div.grid-container"
	selRemotePeers = "app-remote-participant"
	selRemoteTiles = "div.rtc-item.ng-star-inserted"
	attrHidden     = "data-hidden"
)

// optionSelector matches the overlay option with the given value.
func optionSelector(value string) string {
	return "mat-option[ng-reflect-value=" + value + "]"
}
