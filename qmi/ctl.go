package qmi

import "strconv"

// Service type identifiers, as assigned by the QMI control service.
const (
	ServiceControl = 0x00 // CTL
	ServiceWDS     = 0x01 // Wireless data service
	ServiceDMS     = 0x02 // Device management service
	ServiceNAS     = 0x03 // Network access service
	ServiceQOS     = 0x04 // Quality of service
	ServiceWMS     = 0x05 // Wireless messaging service
	ServicePDS     = 0x06 // Position determination service
	ServiceAUTH    = 0x07
	ServiceAT      = 0x08
	ServiceVOICE   = 0x09
	ServiceCAT     = 0x0a
	ServiceUIM     = 0x0b
	ServicePBM     = 0x0c
	ServiceQCHAT   = 0x0d
	ServiceRMTFS   = 0x0e
	ServiceTEST    = 0x0f
	ServiceLOC     = 0x10
	ServiceSAR     = 0x11
	ServiceCSD     = 0x14
	ServiceEFS     = 0x15
	ServiceTS      = 0x17
	ServiceTMD     = 0x18
	ServiceWDA     = 0x1a
	ServiceCSVT    = 0x1d
	ServiceCOEX    = 0x22
	ServicePDC     = 0x24
	ServiceRFRPE   = 0x29
	ServiceDSD     = 0x2a
	ServiceSSCTL   = 0x2b
	ServiceDPM     = 0x2f
	ServiceCATOld  = 0xe0
	ServiceRMS     = 0xe1
	ServiceOMA     = 0xe2
)

var serviceNames = map[uint8]string{
	ServiceControl: "CTL",
	ServiceWDS:     "WDS",
	ServiceDMS:     "DMS",
	ServiceNAS:     "NAS",
	ServiceQOS:     "QOS",
	ServiceWMS:     "WMS",
	ServicePDS:     "PDS",
	ServiceAUTH:    "AUTH",
	ServiceAT:      "AT",
	ServiceVOICE:   "VOICE",
	ServiceCAT:     "CAT",
	ServiceUIM:     "UIM",
	ServicePBM:     "PBM",
	ServiceQCHAT:   "QCHAT",
	ServiceRMTFS:   "RMTFS",
	ServiceTEST:    "TEST",
	ServiceLOC:     "LOC",
	ServiceSAR:     "SAR",
	ServiceCSD:     "CSD",
	ServiceEFS:     "EFS",
	ServiceTS:      "TS",
	ServiceTMD:     "TMD",
	ServiceWDA:     "WDA",
	ServiceCSVT:    "CSVT",
	ServiceCOEX:    "COEX",
	ServicePDC:     "PDC",
	ServiceRFRPE:   "RFRPE",
	ServiceDSD:     "DSD",
	ServiceSSCTL:   "SSCTL",
	ServiceCATOld:  "CAT",
	ServiceRMS:     "RMS",
	ServiceOMA:     "OMA",
}

// serviceTypeString returns the short mnemonic for a service type, or the
// numeric value formatted as a string when the type is not recognized.
func serviceTypeString(t uint8) string {
	if name, ok := serviceNames[t]; ok {
		return name
	}
	return strconv.Itoa(int(t))
}

// ServiceName is the exported form of serviceTypeString, for callers outside
// this package (diagnostic CLIs, logging) that want the same mnemonic used
// in trace output.
func ServiceName(t uint8) string {
	return serviceTypeString(t)
}

// CTL message identifiers.
const (
	ctlMsgGetVersionInfo   = 0x0021
	ctlMsgGetClientID      = 0x0022
	ctlMsgReleaseClientID  = 0x0023
	ctlMsgSync             = 0x0027
)

// TLV types used by CTL messages.
const (
	tlvResultCode     = 0x02
	tlvServiceList    = 0x01 // GET_VERSION_INFO reply: array of {type,major,minor}
	tlvVersionString  = 0x10 // GET_VERSION_INFO reply: length-prefixed string
	tlvGetClientIDReq = 0x01 // GET_CLIENT_ID request: service type byte
	tlvGetClientIDRsp = 0x01 // GET_CLIENT_ID reply: {service, client}
	tlvReleaseClient  = 0x01 // RELEASE_CLIENT_ID request/reply: {service, client}
)

// clientBroadcast is the client id used by indications targeting every
// registered service, whatever its type.
const clientBroadcast = 0xff
