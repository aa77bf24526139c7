package pricequery

import (
	"github.com/shopspring/decimal"
)

// PriceRecord is one observed sale event returned by the price API.
type PriceRecord struct {
	GTIN          string
	Description   string
	SaleValue     decimal.NullDecimal
	SaleDate      string
	Establishment string
	Municipality  string
	RegionCode    int
}

// Request identifies one price query.
type Request struct {
	GTIN         string
	RegionCode   int
	LookbackDays int
}

// searchRequest is the JSON body of the product search endpoint.
type searchRequest struct {
	Produto         productFilter       `json:"produto"`
	Estabelecimento establishmentFilter `json:"estabelecimento"`
	Dias            int                 `json:"dias"`
}

type productFilter struct {
	GTIN string `json:"gtin"`
}

type establishmentFilter struct {
	Municipio municipalityFilter `json:"municipio"`
}

type municipalityFilter struct {
	CodigoIBGE int `json:"codigoIBGE"`
}

func newSearchRequest(req Request) searchRequest {
	return searchRequest{
		Produto:         productFilter{GTIN: req.GTIN},
		Estabelecimento: establishmentFilter{Municipio: municipalityFilter{CodigoIBGE: req.RegionCode}},
		Dias:            req.LookbackDays,
	}
}

// searchResponse is the subset of the search response we read.
// Nested objects are pointers so that missing ones decode to nil.
type searchResponse struct {
	Conteudo []searchItem `json:"conteudo"`
}

type searchItem struct {
	Produto         *productPayload       `json:"produto"`
	Estabelecimento *establishmentPayload `json:"estabelecimento"`
}

type productPayload struct {
	GTIN      flexString   `json:"gtin"`
	Descricao string       `json:"descricao"`
	Venda     *salePayload `json:"venda"`
}

type salePayload struct {
	ValorVenda decimal.NullDecimal `json:"valorVenda"`
	DataVenda  string              `json:"dataVenda"`
}

type establishmentPayload struct {
	NomeFantasia string          `json:"nomeFantasia"`
	Endereco     *addressPayload `json:"endereco"`
}

type addressPayload struct {
	Municipio string `json:"municipio"`
}

// toRecord maps one response entry. Missing sub-objects leave fields empty.
func (it searchItem) toRecord(req Request) PriceRecord {
	rec := PriceRecord{RegionCode: req.RegionCode}

	if p := it.Produto; p != nil {
		rec.GTIN = string(p.GTIN)
		rec.Description = p.Descricao
		if v := p.Venda; v != nil {
			rec.SaleValue = v.ValorVenda
			rec.SaleDate = v.DataVenda
		}
	}
	if rec.GTIN == "" {
		rec.GTIN = req.GTIN
	}

	if e := it.Estabelecimento; e != nil {
		rec.Establishment = e.NomeFantasia
		if a := e.Endereco; a != nil {
			rec.Municipality = a.Municipio
		}
	}

	return rec
}
