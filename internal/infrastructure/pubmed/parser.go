// Package pubmed reads PubMed article XML from NLM's E-utilities and from the
// local article repository.
package pubmed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"EBMS/internal/domain"
	"EBMS/pkg/htmltext"
)

type articleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Inner    string   `xml:",innerxml"`
	Citation citation `xml:"MedlineCitation"`
}

type citation struct {
	PMID        string      `xml:"PMID"`
	Revised     xmlDate     `xml:"DateRevised"`
	Article     articleInfo `xml:"Article"`
	JournalInfo struct {
		MedlineTA   string `xml:"MedlineTA"`
		NlmUniqueID string `xml:"NlmUniqueID"`
	} `xml:"MedlineJournalInfo"`
}

type articleInfo struct {
	Journal struct {
		Title           string `xml:"Title"`
		ISOAbbreviation string `xml:"ISOAbbreviation"`
		Issue           struct {
			Volume  string `xml:"Volume"`
			Issue   string `xml:"Issue"`
			PubDate struct {
				Year        string `xml:"Year"`
				MedlineDate string `xml:"MedlineDate"`
			} `xml:"PubDate"`
		} `xml:"JournalIssue"`
	} `xml:"Journal"`
	Title      markup `xml:"ArticleTitle"`
	Pagination struct {
		MedlinePgn string `xml:"MedlinePgn"`
	} `xml:"Pagination"`
	Abstract struct {
		Texts []abstractText `xml:"AbstractText"`
	} `xml:"Abstract"`
	Authors struct {
		List []author `xml:"Author"`
	} `xml:"AuthorList"`
}

type markup struct {
	Inner string `xml:",innerxml"`
}

type abstractText struct {
	Label string `xml:"Label,attr"`
	Inner string `xml:",innerxml"`
}

type author struct {
	LastName       string `xml:"LastName"`
	Initials       string `xml:"Initials"`
	CollectiveName string `xml:"CollectiveName"`
}

type xmlDate struct {
	Year  string `xml:"Year"`
	Month string `xml:"Month"`
	Day   string `xml:"Day"`
}

// ParseArticleSet decodes a PubmedArticleSet document into records. Each record keeps
// the serialized PubmedArticle element it came from.
func ParseArticleSet(r io.Reader) ([]domain.PubmedRecord, error) {
	var set articleSet
	if err := xml.NewDecoder(r).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode article set: %w", err)
	}

	records := make([]domain.PubmedRecord, 0, len(set.Articles))
	for _, a := range set.Articles {
		rec, err := a.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ParseArticle decodes a single PubmedArticle document as stored in the repository.
func ParseArticle(data []byte) (domain.PubmedRecord, error) {
	var a pubmedArticle
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return domain.PubmedRecord{}, fmt.Errorf("decode article: %w", err)
	}
	return a.record()
}

func (a pubmedArticle) record() (domain.PubmedRecord, error) {
	c := a.Citation
	pmid := strings.TrimSpace(c.PMID)
	if pmid == "" {
		return domain.PubmedRecord{}, fmt.Errorf("article without PMID")
	}
	revised, err := c.Revised.time()
	if err != nil {
		return domain.PubmedRecord{}, fmt.Errorf("article %s: %w", pmid, err)
	}

	info := c.Article
	brief := strings.TrimSpace(c.JournalInfo.MedlineTA)
	if brief == "" {
		brief = strings.TrimSpace(info.Journal.ISOAbbreviation)
	}

	return domain.PubmedRecord{
		PMID:         pmid,
		Title:        htmltext.MustText(info.Title.Inner),
		Authors:      authorNames(info.Authors.List),
		JournalTitle: strings.TrimSpace(info.Journal.Title),
		BriefJournal: brief,
		JournalID:    strings.TrimSpace(c.JournalInfo.NlmUniqueID),
		Volume:       strings.TrimSpace(info.Journal.Issue.Volume),
		Issue:        strings.TrimSpace(info.Journal.Issue.Issue),
		Pages:        strings.TrimSpace(info.Pagination.MedlinePgn),
		Year:         pubYear(info.Journal.Issue.PubDate.Year, info.Journal.Issue.PubDate.MedlineDate),
		Abstract:     abstract(info.Abstract.Texts),
		Revised:      revised,
		XML:          "<PubmedArticle>" + a.Inner + "</PubmedArticle>",
	}, nil
}

func authorNames(list []author) []string {
	names := make([]string, 0, len(list))
	for _, au := range list {
		switch {
		case au.CollectiveName != "":
			names = append(names, strings.TrimSpace(au.CollectiveName))
		case au.LastName != "":
			name := strings.TrimSpace(au.LastName)
			if initials := strings.TrimSpace(au.Initials); initials != "" {
				name += " " + initials
			}
			names = append(names, name)
		}
	}
	return names
}

func abstract(texts []abstractText) string {
	paragraphs := make([]string, 0, len(texts))
	for _, t := range texts {
		text := htmltext.MustText(t.Inner)
		if text == "" {
			continue
		}
		if t.Label != "" {
			text = t.Label + ": " + text
		}
		paragraphs = append(paragraphs, text)
	}
	return strings.Join(paragraphs, "\n")
}

// MedlineDate values look like "1998 Dec-1999 Jan"; the year leads.
func pubYear(year, medlineDate string) string {
	if year = strings.TrimSpace(year); year != "" {
		return year
	}
	medlineDate = strings.TrimSpace(medlineDate)
	if len(medlineDate) >= 4 {
		if _, err := strconv.Atoi(medlineDate[:4]); err == nil {
			return medlineDate[:4]
		}
	}
	return ""
}

func (d xmlDate) time() (time.Time, error) {
	if d.Year == "" {
		return time.Time{}, nil
	}
	parts := make([]int, 3)
	for i, raw := range []string{d.Year, d.Month, d.Day} {
		if raw == "" {
			parts[i] = 1
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return time.Time{}, fmt.Errorf("bad revision date %s-%s-%s", d.Year, d.Month, d.Day)
		}
		parts[i] = n
	}
	return time.Date(parts[0], time.Month(parts[1]), parts[2], 0, 0, 0, 0, time.UTC), nil
}
