package t30

/*------------------------------------------------------------------
 *
 * Purpose:	The ~30 flow-chart states from the T.30 recommendation's
 *		call-control diagrams (§3, §4.5).
 *
 * Description:	Dispatch is keyed on (FlowState, frame command): see
 *		Session.DeliverFrame in session.go.
 *
 *------------------------------------------------------------------*/

// FlowState is a position in the T.30 flow charts.
type FlowState int

const (
	FlowAnswering FlowState = iota
	FlowB
	FlowC
	FlowD
	FlowDTCF
	FlowDPostTCF
	FlowFTCF
	FlowFCFR
	FlowFFTT
	FlowFDocNonEcm
	FlowFPostDocNonEcm
	FlowFDocEcm
	FlowFPostDocEcm
	FlowFPostRcpMCF
	FlowFPostRcpPPR
	FlowFPostRcpRNR
	FlowR
	FlowT
	FlowI
	FlowII
	FlowIIQ
	FlowIIIQMCF
	FlowIIIQRTP
	FlowIIIQRTN
	FlowIV
	FlowIVPPSNull
	FlowIVPPSQ
	FlowIVPPSRNR
	FlowIVCTC
	FlowIVEOR
	FlowIVEORRNR
	FlowCallFinished
)

func (s FlowState) String() string {
	names := map[FlowState]string{
		FlowAnswering:      "Answering",
		FlowB:              "B",
		FlowC:              "C",
		FlowD:              "D",
		FlowDTCF:           "D-TCF",
		FlowDPostTCF:       "D-PostTCF",
		FlowFTCF:           "F-TCF",
		FlowFCFR:           "F-CFR",
		FlowFFTT:           "F-FTT",
		FlowFDocNonEcm:     "F-Doc-NonEcm",
		FlowFPostDocNonEcm: "F-PostDoc-NonEcm",
		FlowFDocEcm:        "F-Doc-Ecm",
		FlowFPostDocEcm:    "F-PostDoc-Ecm",
		FlowFPostRcpMCF:    "F-PostRcp-MCF",
		FlowFPostRcpPPR:    "F-PostRcp-PPR",
		FlowFPostRcpRNR:    "F-PostRcp-RNR",
		FlowR:              "R",
		FlowT:              "T",
		FlowI:              "I",
		FlowII:             "II",
		FlowIIQ:            "II-Q",
		FlowIIIQMCF:        "III-Q-MCF",
		FlowIIIQRTP:        "III-Q-RTP",
		FlowIIIQRTN:        "III-Q-RTN",
		FlowIV:             "IV",
		FlowIVPPSNull:      "IV-PPS-Null",
		FlowIVPPSQ:         "IV-PPS-Q",
		FlowIVPPSRNR:       "IV-PPS-RNR",
		FlowIVCTC:          "IV-CTC",
		FlowIVEOR:          "IV-EOR",
		FlowIVEORRNR:       "IV-EOR-RNR",
		FlowCallFinished:   "CallFinished",
	}
	if n, ok := names[s]; ok {
		return n
	}
	return "Unknown"
}

// PostPageCommand is the post-page FCF a transmitter sends after a page
// (or partial page) completes, per §4.5/§4.6.
type PostPageCommand byte

const (
	PostPageMPS PostPageCommand = PostPageCommand(FcfMPS)
	PostPageEOM PostPageCommand = PostPageCommand(FcfEOM)
	PostPageEOP PostPageCommand = PostPageCommand(FcfEOP)
	PostPagePriMPS PostPageCommand = PostPageCommand(FcfPRIMPS)
	PostPagePriEOM PostPageCommand = PostPageCommand(FcfPRIEOM)
	PostPagePriEOP PostPageCommand = PostPageCommand(FcfPRIEOP)
)
