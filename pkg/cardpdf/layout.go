package cardpdf

// Card geometry in PDF points. The canvas matches a credit-card format at 96 DPI.
const (
	PageWidth  = 340.0
	PageHeight = 216.0

	cardInset  = 5.0
	cardWidth  = 330.0
	cardHeight = 206.0
	cardRadius = 15.0
	borderLine = 1.0

	headerTitleY   = 15.0
	headerTitlePt  = 12.0
	headerSubY     = 32.0
	headerSubPt    = 9.0
	headerSubtitle = "Teacher Card"

	qrX    = 280.0
	qrY    = 15.0
	qrSide = 45.0

	photoCenterX = 50.0
	photoCenterY = 100.0
	photoRadius  = 25.0
	placeholder  = "?"
	placeholdPt  = 20.0

	infoX         = 90.0
	infoY         = 80.0
	nameGap       = 20.0
	statusGap     = 15.0
	emailGap      = 20.0
	namePt        = 12.0
	statusPt      = 10.0
	emailPt       = 9.0
	subjectsPt    = 8.0
	subjectsLabel = "Subjects: "

	footerY       = 190.0
	footerLeftX   = 20.0
	footerRightW  = 320.0
	footerPt      = 8.0
	validityLabel = "Valid until %d"
)

type rgb struct{ r, g, b int }

var (
	gradientTop    = rgb{0xff, 0xff, 0xff}
	gradientBottom = rgb{0xf3, 0xf4, 0xf6}
	borderColor    = rgb{0xcb, 0xd5, 0xe1}
	titleColor     = rgb{0x1e, 0x40, 0xaf}
	subtitleColor  = rgb{0x47, 0x55, 0x69}
	photoFill      = rgb{0xf8, 0xfa, 0xfc}
	placeholdColor = rgb{0xcc, 0xcc, 0xcc}
	nameColor      = rgb{0x1e, 0x29, 0x3b}
	accentColor    = rgb{0x3b, 0x82, 0xf6}
	mutedColor     = rgb{0x64, 0x74, 0x8b}
	footerColor    = rgb{0x47, 0x55, 0x69}
)
