package handler

import "encoding/xml"

const twimlContentType = "text/xml"

// twimlResponse is a messaging reply envelope holding exactly one message.
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

func renderTwiML(reply string) []byte {
	out, err := xml.Marshal(twimlResponse{Message: reply})
	if err != nil {
		return []byte(xml.Header + "<Response><Message></Message></Response>")
	}
	return append([]byte(xml.Header), out...)
}
