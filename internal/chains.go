package internal

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Chain struct {
	Name      string  `yaml:"name" json:"name"`
	ID        string  `yaml:"id" json:"id"`
	Dialect   Dialect `yaml:"dialect" json:"dialect"`
	Username  string  `yaml:"username,omitempty" json:"username,omitempty"`
	Password  string  `yaml:"password,omitempty" json:"-"`
	Subdomain string  `yaml:"subdomain,omitempty" json:"subdomain,omitempty"`
}

var builtinChains = []Chain{
	{Name: "DorAlon", ID: "7290492000005", Dialect: DialectCerberus, Username: "doralon"},
	{Name: "TivTaam", ID: "7290873255550", Dialect: DialectCerberus, Username: "TivTaam"},
	{Name: "HaziHinam", ID: "7290700100008", Dialect: DialectCerberus, Username: "HaziHinam"},
	{Name: "Yohananof", ID: "7290100700006", Dialect: DialectCerberus, Username: "yohananof"},
	{Name: "OsherAd", ID: "7290103152017", Dialect: DialectCerberus, Username: "osherad"},
	{Name: "SalachDabach", ID: "7290526500006", Dialect: DialectCerberus, Username: "SalachD", Password: "12345"},
	{Name: "StopMarket", ID: "7290639000004", Dialect: DialectCerberus, Username: "Stop_Market"},
	{Name: "Politzer", ID: "7291059100008", Dialect: DialectCerberus, Username: "politzer"},
	{Name: "PazBo", ID: "7290644700005", Dialect: DialectCerberus, Username: "Paz_bo", Password: "paz468"},
	{Name: "Freshmarket", ID: "7290876100000", Dialect: DialectCerberus, Username: "freshmarket"},
	{Name: "Keshet", ID: "7290785400000", Dialect: DialectCerberus, Username: "Keshet"},
	{Name: "RamiLevi", ID: "7290058140886", Dialect: DialectCerberus, Username: "RamiLevi"},
	{Name: "SuperCofixApp", ID: "7291056200008", Dialect: DialectCerberus, Username: "SuperCofixApp"},
	{Name: "Shufersal", ID: "7290027600007", Dialect: DialectShufersal},
	{Name: "SuperPharm", ID: "7290172900007", Dialect: DialectSuperPharm},
	{Name: "Victory", ID: "7290696200003", Dialect: DialectNibit},
	{Name: "HCohen", ID: "7290455000004", Dialect: DialectNibit},
	{Name: "MachsaneiHashook", ID: "7290661400001", Dialect: DialectNibit},
}

type ChainCatalog struct {
	chains []Chain
}

func DefaultChains() *ChainCatalog {
	out := make([]Chain, len(builtinChains))
	copy(out, builtinChains)
	return &ChainCatalog{chains: out}
}

// LoadChainCatalog returns the built-in chains extended (or overridden by name)
// with the entries of a YAML file. An empty path yields the built-in list.
func LoadChainCatalog(path string) (*ChainCatalog, error) {
	catalog := DefaultChains()
	if strings.TrimSpace(path) == "" {
		return catalog, nil
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Chains []Chain `yaml:"chains"`
	}
	if err := yaml.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("parse chains file %s: %w", path, err)
	}

	for _, c := range doc.Chains {
		d, err := ParseDialect(string(c.Dialect))
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", c.Name, err)
		}
		c.Dialect = d
		if strings.TrimSpace(c.Name) == "" || strings.TrimSpace(c.ID) == "" {
			return nil, fmt.Errorf("chain entry needs name and id: %+v", c)
		}
		catalog.put(c)
	}
	return catalog, nil
}

func (c *ChainCatalog) put(chain Chain) {
	for i := range c.chains {
		if strings.EqualFold(c.chains[i].Name, chain.Name) {
			c.chains[i] = chain
			return
		}
	}
	c.chains = append(c.chains, chain)
}

func (c *ChainCatalog) All() []Chain {
	out := make([]Chain, len(c.chains))
	copy(out, c.chains)
	return out
}

func (c *ChainCatalog) ByName(name string) (Chain, error) {
	for _, chain := range c.chains {
		if strings.EqualFold(chain.Name, strings.TrimSpace(name)) {
			return chain, nil
		}
	}
	return Chain{}, fmt.Errorf("unknown chain: %s", name)
}

func (c *ChainCatalog) ByDialect(d Dialect) []Chain {
	var out []Chain
	for _, chain := range c.chains {
		if chain.Dialect == d {
			out = append(out, chain)
		}
	}
	return out
}
