package storefront

// Storefront controls. Patterns live here so markup changes never touch the
// protocol code.
var (
	CreateButton    = Selector{Name: "create-button", Role: "button", Text: `^\s*Create\s*$`}
	CreateTrackItem = Selector{Name: "create-track-item", Role: "menuitem", Text: `^\s*Create Track\s*$`}
	DismissButton   = Selector{Name: "dismiss-popup", CSS: "button", Text: `Dismiss`}

	UploadFileHeading = Selector{Name: "upload-file-heading", Text: `Upload file`}
	BrowseFilesLink   = Selector{Name: "browse-files", Text: `browse files`}
	WidgetFileInput   = Selector{Name: "widget-file-input", CSS: `input.uppy-Dashboard-input[type="file"]`}
	WidgetDashboard   = Selector{Name: "widget-dashboard", CSS: `.uppy-Dashboard-inner`}

	MasterTrackSection = Selector{Name: "master-track-section", CSS: "section", Text: `Master Track`}
	AudioNextStep      = Selector{Name: "audio-next-step", Text: `Metadata|Preview Track|Stem Files`}

	EditArtworkButton = Selector{Name: "edit-artwork", Role: "button", Text: `Edit`}
	UploadFileItem    = Selector{Name: "upload-file-item", Role: "menuitem", Text: `Upload file`}
	CropSaveButton    = Selector{Name: "crop-save", CSS: `button.uppy-DashboardContent-save`}
	UploadFilesButton = Selector{Name: "upload-files", Role: "button", Text: `Upload \d+ files?`}
	UploadPanel       = Selector{Name: "upload-panel", Text: `Uploading|Uploaded all files`}

	MetadataProcessing = Selector{Name: "metadata-processing", Text: `Metadata Processing`}
	ChangesSaved       = Selector{Name: "changes-saved", Text: `Changes Saved`}

	TitleInput = Selector{Name: "title-input", CSS: `input[placeholder*="Title" i]`}
	TagInputs  = []Selector{
		{Name: "tag-input-placeholder", CSS: `input[placeholder*="tag"]`},
		{Name: "tag-input-label", CSS: `input[aria-label*="tag"]`},
		{Name: "tag-input-placeholder-cap", CSS: `input[placeholder*="Tag"]`},
		{Name: "tag-input-label-cap", CSS: `input[aria-label*="Tag"]`},
	}
	AutofillControl = Selector{Name: "autofill-text", Text: `Autofill.*Metadata`}
	AutofillButton  = Selector{Name: "autofill-button", CSS: "button", Text: `Autofill`}

	StemSection      = Selector{Name: "stem-section", CSS: "section", Text: `Stem Files`}
	StemAddButton    = Selector{Name: "stem-add", CSS: "button", Text: `Add`}.In(StemSection)
	ProcessingMarker = Selector{Name: "processing-marker", Text: `Processing`}
	UploadingMarker  = Selector{Name: "uploading-marker", Text: `Uploading`}

	CollaboratorInput  = Selector{Name: "collaborator-input", CSS: `input[placeholder*="Artist"]`}
	AddCollaboratorBtn = Selector{Name: "add-collaborator", Text: `Add collaborator`}

	PublishButton = Selector{Name: "publish-track", CSS: "button", Text: `Publish Track`}
	SurveyOverlay = Selector{Name: "survey-overlay", CSS: `#survey_1049305`}

	SharePanel      = Selector{Name: "share-panel", Text: `Share your CONTENT with the world!`}
	ViewAllLinks    = Selector{Name: "view-all-links", Text: `View all links`}
	ShortURLSection = Selector{Name: "short-url-section", Text: `Marketplace short URL`}
	CopyLinkButton  = Selector{Name: "copy-link", CSS: "button", Text: `Copy link`}
)

// uploadingText is the marker the master track section carries while the
// audio transfer runs.
const uploadingText = "Uploading"

// ShortURLInput matches the panel input whose value carries the short link.
func ShortURLInput(prefix string) Selector {
	return Selector{Name: "short-url-input", CSS: `input[value^="` + prefix + `"]`}
}
